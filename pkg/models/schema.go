package models

// Field types recognized by RecordSchema definitions.
const (
	FieldTypeString  = "string"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeDate    = "date"
	FieldTypeArray   = "array"
	FieldTypeObject  = "object"
)

// FieldDefinition describes one field in a record schema.
type FieldDefinition struct {
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	// Items describes array elements.
	Items *FieldDefinition `json:"items,omitempty"`
	// Fields describes object members.
	Fields map[string]FieldDefinition `json:"fields,omitempty"`
}

// RecordSchema declares the expected shape of records for one record type.
// When attached to a MergeConfig it widens the merge field walk to every
// declared path and gates inputs on validation.
type RecordSchema struct {
	Fields   map[string]FieldDefinition `json:"fields"`
	Required []string                   `json:"required,omitempty"`
}

// Paths returns every leaf field path in dot notation. Arrays count as
// leaves; object members recurse.
func (s *RecordSchema) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.Fields))
	collectPaths("", s.Fields, &paths)
	return paths
}

func collectPaths(prefix string, fields map[string]FieldDefinition, out *[]string) {
	for name, def := range fields {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if def.Type == FieldTypeObject && len(def.Fields) > 0 {
			collectPaths(path, def.Fields, out)
			continue
		}

		*out = append(*out, path)
	}
}

// RequiredSet returns the required paths as a lookup set.
func (s *RecordSchema) RequiredSet() map[string]bool {
	if s == nil {
		return nil
	}
	set := make(map[string]bool, len(s.Required))
	for _, path := range s.Required {
		set[path] = true
	}
	return set
}
