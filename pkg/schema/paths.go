package schema

import (
	"fmt"
	"sort"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// ShapeConflict reports a field path that holds a nested object on one
// side and a plain value on another. No single strategy can merge both
// shapes, so the merge walk refuses the path set.
type ShapeConflict struct {
	// Path is the colliding field path.
	Path string
	// ObjectIn names where the path was seen as an object.
	ObjectIn string
	// ValueIn names where the path was seen as a plain value.
	ValueIn string
}

const schemaHolder = "the schema"

func sourceHolder(id string) string {
	return fmt.Sprintf("source '%s'", id)
}

// CollectPaths unions the schema's declared paths with the leaf paths of
// every source payload, sorted so the merge walk is deterministic. Arrays
// and empty objects count as leaves; nested objects recurse. The first
// object/value collision found is returned instead of a path list.
func CollectPaths(s *models.RecordSchema, sources []models.SourceRecord) ([]string, *ShapeConflict) {
	w := &shapeWalk{
		values:  make(map[string]string),
		objects: make(map[string]string),
		leaves:  make(map[string]struct{}),
	}

	if s != nil {
		if conflict := w.walkSchema("", s.Fields); conflict != nil {
			return nil, conflict
		}
	}
	for _, src := range sources {
		if conflict := w.walkPayload("", src.Record, sourceHolder(src.ID)); conflict != nil {
			return nil, conflict
		}
	}

	paths := make([]string, 0, len(w.leaves))
	for path := range w.leaves {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// shapeWalk records, per path, who saw it as a plain value and who saw it
// as an object. A path present in both maps is a conflict.
type shapeWalk struct {
	values  map[string]string
	objects map[string]string
	leaves  map[string]struct{}
}

func (w *shapeWalk) markValue(path, holder string) *ShapeConflict {
	if objectHolder, ok := w.objects[path]; ok {
		return &ShapeConflict{Path: path, ObjectIn: objectHolder, ValueIn: holder}
	}
	if _, ok := w.values[path]; !ok {
		w.values[path] = holder
	}
	w.leaves[path] = struct{}{}
	return nil
}

func (w *shapeWalk) markObject(path, holder string, leaf bool) *ShapeConflict {
	if valueHolder, ok := w.values[path]; ok {
		return &ShapeConflict{Path: path, ObjectIn: holder, ValueIn: valueHolder}
	}
	if _, ok := w.objects[path]; !ok {
		w.objects[path] = holder
	}
	if leaf {
		w.leaves[path] = struct{}{}
	}
	return nil
}

// walkSchema visits declared fields in name order. Objects with declared
// members recurse; objects without members are merged as units and count
// as leaves.
func (w *shapeWalk) walkSchema(prefix string, fields map[string]models.FieldDefinition) *ShapeConflict {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := fields[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if def.Type == models.FieldTypeObject {
			if conflict := w.markObject(path, schemaHolder, len(def.Fields) == 0); conflict != nil {
				return conflict
			}
			if conflict := w.walkSchema(path, def.Fields); conflict != nil {
				return conflict
			}
			continue
		}

		if conflict := w.markValue(path, schemaHolder); conflict != nil {
			return conflict
		}
	}
	return nil
}

// walkPayload visits payload keys in sorted order so the first conflict
// reported is stable across runs.
func (w *shapeWalk) walkPayload(prefix string, data map[string]any, holder string) *ShapeConflict {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if nested, ok := data[key].(map[string]any); ok {
			if conflict := w.markObject(path, holder, len(nested) == 0); conflict != nil {
				return conflict
			}
			if conflict := w.walkPayload(path, nested, holder); conflict != nil {
				return conflict
			}
			continue
		}

		if conflict := w.markValue(path, holder); conflict != nil {
			return conflict
		}
	}
	return nil
}
