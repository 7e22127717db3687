// Package criteria evaluates filter criteria against record payloads and
// splits them into the part a database can serve natively and the part
// that must run in process.
package criteria

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Condition is a single field comparison inside a filter.
type Condition struct {
	Field   string
	Op      string
	Operand any
}

var knownOps = map[string]bool{
	models.OpEq:   true,
	models.OpNe:   true,
	models.OpGt:   true,
	models.OpGte:  true,
	models.OpLt:   true,
	models.OpLte:  true,
	models.OpIn:   true,
	models.OpLike: true,
}

// Parse flattens a filter into conditions. A plain value becomes an
// equality condition; an operator map contributes one condition per
// operator. Output order is deterministic.
func Parse(filter models.FilterCriteria) []Condition {
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conditions []Condition
	for _, field := range fields {
		switch value := filter[field].(type) {
		case map[string]any:
			ops := make([]string, 0, len(value))
			for op := range value {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			for _, op := range ops {
				conditions = append(conditions, Condition{Field: field, Op: op, Operand: value[op]})
			}
		default:
			conditions = append(conditions, Condition{Field: field, Op: models.OpEq, Operand: value})
		}
	}

	return conditions
}

// Validate rejects filters that reference operators this package cannot
// evaluate. Adapters call it up front so a typo fails loudly instead of
// silently matching nothing.
func Validate(filter models.FilterCriteria) error {
	for _, cond := range Parse(filter) {
		if !knownOps[cond.Op] {
			return fmt.Errorf("filter field '%s' uses unsupported operator '%s'", cond.Field, cond.Op)
		}
		if cond.Op == models.OpIn {
			if _, ok := toSlice(cond.Operand); !ok {
				return fmt.Errorf("filter field '%s' requires an array operand for %s", cond.Field, models.OpIn)
			}
		}
		if cond.Op == models.OpLike {
			if _, ok := cond.Operand.(string); !ok {
				return fmt.Errorf("filter field '%s' requires a string pattern for %s", cond.Field, models.OpLike)
			}
		}
	}
	return nil
}

// Matches reports whether a record satisfies every condition in the
// filter. An empty filter matches everything.
func Matches(record models.Record, filter models.FilterCriteria) bool {
	for _, cond := range Parse(filter) {
		if !Evaluate(record, cond) {
			return false
		}
	}
	return true
}

// Evaluate applies one condition to a record. Fields are dot-notated
// paths into the payload.
func Evaluate(record models.Record, cond Condition) bool {
	value, exists := fieldpath.Get(record, cond.Field)

	switch cond.Op {
	case models.OpEq:
		return exists && valuesEqual(value, cond.Operand)

	case models.OpNe:
		// an absent field differs from every operand
		if !exists {
			return true
		}
		return !valuesEqual(value, cond.Operand)

	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if !exists {
			return false
		}
		return compareOrdered(value, cond.Op, cond.Operand)

	case models.OpIn:
		if !exists {
			return false
		}
		options, ok := toSlice(cond.Operand)
		if !ok {
			return false
		}
		for _, option := range options {
			if valuesEqual(value, option) {
				return true
			}
		}
		return false

	case models.OpLike:
		if !exists {
			return false
		}
		text, textOK := value.(string)
		pattern, patternOK := cond.Operand.(string)
		if !textOK || !patternOK {
			return false
		}
		return likeMatch(text, pattern)

	default:
		return false
	}
}

// Split separates equality conditions, which Postgres can serve with a
// JSONB containment probe, from operator conditions evaluated in process
// after the rows come back.
func Split(filter models.FilterCriteria) (pushdown models.FilterCriteria, residual []Condition) {
	pushdown = models.FilterCriteria{}
	for _, cond := range Parse(filter) {
		if cond.Op == models.OpEq {
			pushdown[cond.Field] = cond.Operand
			continue
		}
		residual = append(residual, cond)
	}
	return pushdown, residual
}

// ContainmentJSON renders equality conditions as the nested document a
// Postgres @> containment query expects. Dotted paths nest. Returns nil
// when there is nothing to push down.
func ContainmentJSON(pushdown models.FilterCriteria) (json.RawMessage, error) {
	if len(pushdown) == 0 {
		return nil, nil
	}

	doc := map[string]any{}
	for field, value := range pushdown {
		fieldpath.Set(doc, field, value)
	}
	return json.Marshal(doc)
}

// valuesEqual compares with numeric coercion so a JSON-decoded float64
// equals the int a caller wrote in a filter literal.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}

	return reflect.DeepEqual(a, b)
}

func compareOrdered(value any, op string, operand any) bool {
	if vf, vok := toFloat(value); vok {
		of, ook := toFloat(operand)
		if !ook {
			return false
		}
		switch op {
		case models.OpGt:
			return vf > of
		case models.OpGte:
			return vf >= of
		case models.OpLt:
			return vf < of
		case models.OpLte:
			return vf <= of
		}
		return false
	}

	// non-numeric values order lexicographically when both are strings
	vs, vok := value.(string)
	os, ook := operand.(string)
	if !vok || !ook {
		return false
	}
	switch op {
	case models.OpGt:
		return vs > os
	case models.OpGte:
		return vs >= os
	case models.OpLt:
		return vs < os
	case models.OpLte:
		return vs <= os
	}
	return false
}

// likeMatch interprets a SQL LIKE pattern: % matches any run, _ matches
// one character, everything else is literal.
func likeMatch(text, pattern string) bool {
	var re strings.Builder
	re.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")

	matched, err := regexp.MatchString(re.String(), text)
	return err == nil && matched
}

func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
