package merging

import (
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// DeepEqual reports whether two field values are the same for conflict
// detection. Numbers compare by value across widths, times by instant,
// arrays element-wise and mappings by key set then value. Any other type
// mismatch is a difference.
func DeepEqual(a, b any) bool {
	a = unwrapRecord(a)
	b = unwrapRecord(b)

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, ok := toNumber(a); ok {
		bn, ok := toNumber(b)
		return ok && an == bn
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, value := range av {
			other, ok := bv[key]
			if !ok || !DeepEqual(value, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func unwrapRecord(v any) any {
	if r, ok := v.(models.Record); ok {
		return map[string]any(r)
	}
	return v
}
