// Package fieldpath reads and writes dot-notated paths inside nested
// record payloads.
package fieldpath

import (
	"sort"
	"strconv"
	"strings"
)

type pathPart struct {
	key      string
	hasIndex bool
	index    int
}

// parsePath splits a dot path into segments. A segment may carry a single
// array index, as in "emails[0]" or "addresses[1].city".
func parsePath(path string) []pathPart {
	segments := strings.Split(path, ".")
	parts := make([]pathPart, 0, len(segments))

	for _, seg := range segments {
		part := pathPart{key: seg}

		if open := strings.Index(seg, "["); open != -1 && strings.HasSuffix(seg, "]") {
			if idx, err := strconv.Atoi(seg[open+1 : len(seg)-1]); err == nil {
				part.key = seg[:open]
				part.hasIndex = true
				part.index = idx
			}
		}

		parts = append(parts, part)
	}

	return parts
}

// Get resolves a dot path against a nested payload. The second return is
// false when any segment is missing; a present null returns (nil, true).
func Get(data map[string]any, path string) (any, bool) {
	if path == "" {
		return data, true
	}

	var current any = data
	for _, part := range parsePath(path) {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		value, ok := node[part.key]
		if !ok {
			return nil, false
		}

		if part.hasIndex {
			arr, ok := value.([]any)
			if !ok || part.index < 0 || part.index >= len(arr) {
				return nil, false
			}
			value = arr[part.index]
		}

		current = value
	}

	return current, true
}

// Set assigns a value at a dot path, creating intermediate objects as
// needed. Existing non-object intermediates are replaced.
func Set(data map[string]any, path string, value any) {
	if path == "" {
		return
	}

	parts := strings.Split(path, ".")
	current := data

	for _, key := range parts[:len(parts)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}

	current[parts[len(parts)-1]] = value
}

// Delete removes the value at a dot path. Empty intermediate objects are
// left in place.
func Delete(data map[string]any, path string) {
	if path == "" {
		return
	}

	parts := strings.Split(path, ".")
	current := data

	for _, key := range parts[:len(parts)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return
		}
		current = next
	}

	delete(current, parts[len(parts)-1])
}

// Has reports whether the path resolves, null values included.
func Has(data map[string]any, path string) bool {
	_, ok := Get(data, path)
	return ok
}

// Leaves returns every leaf path in the payload, sorted. Arrays and nulls
// count as leaves; nested objects recurse.
func Leaves(data map[string]any) []string {
	var paths []string
	collectLeaves("", data, &paths)
	sort.Strings(paths)
	return paths
}

func collectLeaves(prefix string, data map[string]any, out *[]string) {
	for key, value := range data {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			collectLeaves(path, nested, out)
			continue
		}

		*out = append(*out, path)
	}
}
