package matching

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Builtins returns a fresh registry of the built-in comparators.
func Builtins() map[string]models.ComparatorFunc {
	return map[string]models.ComparatorFunc{
		models.ComparatorExact:       Exact,
		models.ComparatorLevenshtein: Levenshtein,
		models.ComparatorJaroWinkler: JaroWinkler,
		models.ComparatorSoundex:     Soundex,
		models.ComparatorMetaphone:   Metaphone,
	}
}

// absentScore settles comparisons involving missing values. The second
// return is true when the comparison is decided here.
func absentScore(left, right any, opts models.ComparatorOptions) (float64, bool) {
	if left == nil && right == nil {
		if opts.NullMatches() {
			return 1.0, true
		}
		return 0.0, true
	}
	if left == nil || right == nil {
		return 0.0, true
	}
	return 0.0, false
}

// Exact returns 1.0 when the values are equal, 0.0 otherwise. Numbers
// compare by value across widths; strings fold case unless caseSensitive;
// mismatched types score 0.
func Exact(left, right any, opts models.ComparatorOptions) (float64, error) {
	if score, done := absentScore(left, right, opts); done {
		return score, nil
	}

	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		if rok && lf == rf {
			return 1.0, nil
		}
		return 0.0, nil
	}

	if lt, lok := left.(time.Time); lok {
		rt, rok := right.(time.Time)
		if rok && lt.Equal(rt) {
			return 1.0, nil
		}
		return 0.0, nil
	}

	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return 0.0, nil
		}
		if !opts.CaseSensitive {
			ls = strings.ToLower(ls)
			rs = strings.ToLower(rs)
		}
		if ls == rs {
			return 1.0, nil
		}
		return 0.0, nil
	}

	if lb, lok := left.(bool); lok {
		rb, rok := right.(bool)
		if rok && lb == rb {
			return 1.0, nil
		}
		return 0.0, nil
	}

	if reflect.DeepEqual(left, right) {
		return 1.0, nil
	}
	return 0.0, nil
}

// Levenshtein returns 1 - editDistance/maxLen over whitespace-collapsed
// strings. Values that do not stringify score 0.
func Levenshtein(left, right any, opts models.ComparatorOptions) (float64, error) {
	if score, done := absentScore(left, right, opts); done {
		return score, nil
	}

	ls, lok := stringify(left)
	rs, rok := stringify(right)
	if !lok || !rok {
		return 0.0, nil
	}

	ls = collapseWhitespace(ls)
	rs = collapseWhitespace(rs)
	if !opts.CaseSensitive {
		ls = strings.ToLower(ls)
		rs = strings.ToLower(rs)
	}

	a := []rune(ls)
	b := []rune(rs)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0, nil
	}

	distance := levenshteinDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen), nil
}

// levenshteinDistance is the two-row dynamic programming edit distance.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// JaroWinkler returns the Jaro similarity boosted by a common-prefix bonus.
// Options: prefixScale (default 0.1) and maxPrefixLength (default 4).
func JaroWinkler(left, right any, opts models.ComparatorOptions) (float64, error) {
	if score, done := absentScore(left, right, opts); done {
		return score, nil
	}

	ls, lok := stringify(left)
	rs, rok := stringify(right)
	if !lok || !rok {
		return 0.0, nil
	}

	if !opts.CaseSensitive {
		ls = strings.ToLower(ls)
		rs = strings.ToLower(rs)
	}

	if ls == rs {
		return 1.0, nil
	}

	a := []rune(ls)
	b := []rune(rs)
	jaroScore := jaro(a, b)

	scale := 0.1
	if opts.PrefixScale != nil {
		scale = math.Min(math.Max(*opts.PrefixScale, 0), 1)
	}
	maxPrefix := 4
	if opts.MaxPrefixLength != nil && *opts.MaxPrefixLength >= 0 {
		maxPrefix = *opts.MaxPrefixLength
	}

	prefixLen := 0
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefixLen++
	}

	return jaroScore + float64(prefixLen)*scale*(1.0-jaroScore), nil
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex scores 1.0 when both values share a Soundex code, 0.0 otherwise.
func Soundex(left, right any, opts models.ComparatorOptions) (float64, error) {
	if score, done := absentScore(left, right, opts); done {
		return score, nil
	}

	ls, lok := stringify(left)
	rs, rok := stringify(right)
	if !lok || !rok {
		return 0.0, nil
	}

	maxLen := codeLength(opts)
	if EncodeSoundex(ls, maxLen) == EncodeSoundex(rs, maxLen) {
		return 1.0, nil
	}
	return 0.0, nil
}

// EncodeSoundex returns the zero-padded Soundex code of a string.
func EncodeSoundex(str string, maxLength int) string {
	runes := []rune(strings.ToUpper(str))
	if len(runes) == 0 {
		return ""
	}

	result := string(runes[0])
	prevCode := soundexCode(runes[0])

	for i := 1; i < len(runes) && len(result) < maxLength; i++ {
		char := runes[i]
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < maxLength {
		result += "0"
	}

	return result
}

func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

// Metaphone scores 1.0 when both values share a Metaphone code.
func Metaphone(left, right any, opts models.ComparatorOptions) (float64, error) {
	if score, done := absentScore(left, right, opts); done {
		return score, nil
	}

	ls, lok := stringify(left)
	rs, rok := stringify(right)
	if !lok || !rok {
		return 0.0, nil
	}

	maxLen := codeLength(opts)
	if EncodeMetaphone(ls, maxLen) == EncodeMetaphone(rs, maxLen) {
		return 1.0, nil
	}
	return 0.0, nil
}

// EncodeMetaphone returns a simplified Metaphone code of a string.
func EncodeMetaphone(str string, maxLength int) string {
	var letters []byte
	for _, char := range strings.ToUpper(str) {
		if char >= 'A' && char <= 'Z' {
			letters = append(letters, byte(char))
		}
	}

	if len(letters) == 0 {
		return ""
	}

	var metaphone strings.Builder
	prevCode := byte(0)

	for i := 0; i < len(letters) && metaphone.Len() < maxLength; i++ {
		code := metaphoneCode(letters[i], i, letters)
		if code != 0 && code != prevCode {
			metaphone.WriteByte(code)
			prevCode = code
		}
	}

	return metaphone.String()
}

func metaphoneCode(char byte, pos int, word []byte) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0 // usually silent
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W':
		return 0
	case 'X':
		return 'S'
	case 'Y':
		return 0
	case 'Z':
		return 'S'
	default:
		return 0
	}
}

func codeLength(opts models.ComparatorOptions) int {
	if opts.MaxCodeLength != nil && *opts.MaxCodeLength > 0 {
		return *opts.MaxCodeLength
	}
	return 4
}

// DateProximity scores two dates by linear decay: 1.0 at equality, 0.0 at
// or beyond maxDaysDiff. Useful as a building block for custom comparators.
func DateProximity(a, b time.Time, maxDaysDiff int) float64 {
	if a.IsZero() || b.IsZero() {
		return 0.0
	}

	daysDiff := math.Abs(a.Sub(b).Hours() / 24)

	if daysDiff == 0 {
		return 1.0
	}
	if int(daysDiff) >= maxDaysDiff {
		return 0.0
	}

	return 1.0 - (daysDiff / float64(maxDaysDiff))
}

// NumericProximity scores two numbers by linear decay over maxDiff.
func NumericProximity(a, b, maxDiff float64) float64 {
	if a == b {
		return 1.0
	}

	diff := math.Abs(a - b)
	if diff >= maxDiff {
		return 0.0
	}

	return 1.0 - (diff / maxDiff)
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case bool:
		return strconv.FormatBool(val), true
	case time.Time:
		return val.UTC().Format(time.RFC3339), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
