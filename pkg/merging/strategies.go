package merging

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Builtins returns the built-in merge strategies keyed by name. The custom
// strategy is absent on purpose; it resolves through the field config.
func Builtins() map[string]models.StrategyFunc {
	return map[string]models.StrategyFunc{
		models.StrategyPreferFirst:   PreferFirst,
		models.StrategyPreferLast:    PreferLast,
		models.StrategyPreferNonNull: PreferNonNull,
		models.StrategyPreferNewer:   PreferNewer,
		models.StrategyPreferOlder:   PreferOlder,
		models.StrategyPreferLonger:  PreferLonger,
		models.StrategyPreferShorter: PreferShorter,
		models.StrategyConcatenate:   Concatenate,
		models.StrategyUnion:         Union,
		models.StrategyMostFrequent:  MostFrequent,
		models.StrategyAverage:       Average,
		models.StrategySum:           Sum,
		models.StrategyMin:           Min,
		models.StrategyMax:           Max,
	}
}

// PreferFirst returns the first eligible value in input order.
func PreferFirst(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	eligible := eligibleValues(values, opts)
	if len(eligible) == 0 {
		return nil, nil
	}
	return eligible[0].Value, nil
}

// PreferLast returns the last eligible value in input order.
func PreferLast(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	eligible := eligibleValues(values, opts)
	if len(eligible) == 0 {
		return nil, nil
	}
	return eligible[len(eligible)-1].Value, nil
}

// PreferNonNull returns the first value that is present, regardless of the
// null handling option.
func PreferNonNull(values []models.FieldValue, _ models.StrategyOptions) (any, error) {
	for _, v := range values {
		if !v.IsNull() {
			return v.Value, nil
		}
	}
	return nil, nil
}

// PreferNewer returns the value whose record carries the latest timestamp.
// Values without a usable timestamp are ignored; when none carry one the
// first non-null value wins.
func PreferNewer(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	return preferByTime(values, opts, func(candidate, best models.FieldValue) bool {
		return candidate.Timestamp.After(best.Timestamp)
	})
}

// PreferOlder returns the value whose record carries the earliest timestamp,
// with the same fallback as PreferNewer.
func PreferOlder(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	return preferByTime(values, opts, func(candidate, best models.FieldValue) bool {
		return candidate.Timestamp.Before(best.Timestamp)
	})
}

func preferByTime(values []models.FieldValue, opts models.StrategyOptions, better func(candidate, best models.FieldValue) bool) (any, error) {
	eligible := eligibleValues(values, opts)

	best := -1
	for i, v := range eligible {
		if v.IsNull() || v.Timestamp.IsZero() {
			continue
		}
		if best < 0 || better(v, eligible[best]) {
			best = i
		}
	}
	if best >= 0 {
		return eligible[best].Value, nil
	}

	for _, v := range eligible {
		if !v.IsNull() {
			return v.Value, nil
		}
	}
	return nil, nil
}

// PreferLonger returns the value with the longest string form. Earlier values
// win length ties.
func PreferLonger(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	var longest any
	maxLen := -1

	for _, v := range eligibleValues(values, opts) {
		if v.IsNull() {
			continue
		}
		s := valueString(v.Value)
		if len(s) > maxLen {
			maxLen = len(s)
			longest = v.Value
		}
	}
	return longest, nil
}

// PreferShorter returns the value with the shortest non-empty string form.
func PreferShorter(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	var shortest any
	minLen := -1

	for _, v := range eligibleValues(values, opts) {
		if v.IsNull() {
			continue
		}
		s := valueString(v.Value)
		if len(s) == 0 {
			continue
		}
		if minLen < 0 || len(s) < minLen {
			minLen = len(s)
			shortest = v.Value
		}
	}
	return shortest, nil
}

// Concatenate joins the string forms of all non-empty values with the
// configured separator.
func Concatenate(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	separator := opts.Separator
	if separator == "" {
		separator = ", "
	}

	parts := make([]string, 0, len(values))
	for _, v := range eligibleValues(values, opts) {
		if v.IsNull() {
			continue
		}
		s := valueString(v.Value)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}

	if len(parts) == 0 {
		return nil, nil
	}
	return strings.Join(parts, separator), nil
}

// Union collects distinct values into one array, preserving first-seen order.
// Array values contribute their elements rather than the array itself.
func Union(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	result := make([]any, 0, len(values))
	seen := make(map[string]bool)

	appendDistinct := func(v any) bool {
		key := valueString(v)
		if seen[key] {
			return true
		}
		seen[key] = true
		result = append(result, v)
		return opts.MaxItems <= 0 || len(result) < opts.MaxItems
	}

	for _, v := range eligibleValues(values, opts) {
		if v.IsNull() {
			continue
		}

		rv := reflect.ValueOf(v.Value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				elem := rv.Index(i).Interface()
				if elem == nil {
					continue
				}
				if !appendDistinct(elem) {
					return result, nil
				}
			}
			continue
		}

		if !appendDistinct(v.Value) {
			return result, nil
		}
	}

	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// MostFrequent returns the modal value. Ties resolve to the value seen first.
func MostFrequent(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	counts := make(map[string]int)
	order := make([]string, 0, len(values))
	byKey := make(map[string]any)

	for _, v := range eligibleValues(values, opts) {
		if v.IsNull() {
			continue
		}
		key := valueString(v.Value)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			byKey[key] = v.Value
		}
		counts[key]++
	}

	bestKey := ""
	bestCount := 0
	for _, key := range order {
		if counts[key] > bestCount {
			bestKey = key
			bestCount = counts[key]
		}
	}

	if bestCount == 0 {
		return nil, nil
	}
	return byKey[bestKey], nil
}

// Average returns the mean of the numeric values, skipping everything else.
func Average(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	var sum float64
	var count int

	for _, v := range eligibleValues(values, opts) {
		if num, ok := toNumber(v.Value); ok {
			sum += num
			count++
		}
	}

	if count == 0 {
		return nil, nil
	}
	return sum / float64(count), nil
}

// Sum returns the sum of the numeric values, skipping everything else.
func Sum(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	var sum float64
	var found bool

	for _, v := range eligibleValues(values, opts) {
		if num, ok := toNumber(v.Value); ok {
			sum += num
			found = true
		}
	}

	if !found {
		return nil, nil
	}
	return sum, nil
}

// Min returns the smallest numeric value, skipping everything else.
func Min(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	return pickNumber(values, opts, func(candidate, best float64) bool {
		return candidate < best
	})
}

// Max returns the largest numeric value, skipping everything else.
func Max(values []models.FieldValue, opts models.StrategyOptions) (any, error) {
	return pickNumber(values, opts, func(candidate, best float64) bool {
		return candidate > best
	})
}

func pickNumber(values []models.FieldValue, opts models.StrategyOptions, better func(candidate, best float64) bool) (any, error) {
	var best float64
	var found bool

	for _, v := range eligibleValues(values, opts) {
		num, ok := toNumber(v.Value)
		if !ok {
			continue
		}
		if !found || better(num, best) {
			best = num
			found = true
		}
	}

	if !found {
		return nil, nil
	}
	return best, nil
}

// eligibleValues applies the null handling policy before a strategy runs.
func eligibleValues(values []models.FieldValue, opts models.StrategyOptions) []models.FieldValue {
	if !opts.SkipNulls() {
		return values
	}

	eligible := make([]models.FieldValue, 0, len(values))
	for _, v := range values {
		if !v.IsNull() {
			eligible = append(eligible, v)
		}
	}
	return eligible
}

func valueString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	default:
		return 0, false
	}
}
