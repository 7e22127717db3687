// Package normalizers canonicalizes string field values before they reach
// a comparator, so cosmetic differences (case, punctuation, phone
// formatting) stop masquerading as real ones.
package normalizers

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Func rewrites a string into its canonical form.
type Func func(string) string

// Built-in normalizer names, referenced from field match configs.
const (
	Lowercase          = "lowercase"
	Uppercase          = "uppercase"
	Trim               = "trim"
	CollapseWhitespace = "collapse_whitespace"
	StripPunctuation   = "strip_punctuation"
	Digits             = "digits"
	Alphanumeric       = "alphanumeric"
	Email              = "email"
	Phone              = "phone"
	PersonName         = "person_name"
	Address            = "address"
)

var (
	mu       sync.RWMutex
	registry = builtins()
)

func builtins() map[string]Func {
	return map[string]Func{
		Lowercase:          strings.ToLower,
		Uppercase:          strings.ToUpper,
		Trim:               strings.TrimSpace,
		CollapseWhitespace: collapseWhitespace,
		StripPunctuation:   stripPunctuation,
		Digits:             digitsOnly,
		Alphanumeric:       alphanumeric,
		Email:              normalizeEmail,
		Phone:              normalizePhone,
		PersonName:         normalizePersonName,
		Address:            normalizeAddress,
	}
}

// Register binds a name to a normalizer, replacing any previous binding.
// Empty names and nil funcs are ignored.
func Register(name string, fn Func) {
	if strings.TrimSpace(name) == "" || fn == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Lookup resolves a normalizer by name.
func Lookup(name string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered normalizer names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs the named normalizers over the value in order. Unknown names
// are skipped; validation against Lookup belongs to config loading, not to
// the hot path.
func Apply(value string, names ...string) string {
	for _, name := range names {
		fn, ok := Lookup(name)
		if !ok {
			continue
		}
		value = fn(value)
	}
	return value
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func alphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizePhone keeps digits only, so "+1 (555) 010-4477" and
// "15550104477" canonicalize identically.
func normalizePhone(s string) string {
	return digitsOnly(s)
}

// nameSuffixes are generational and credential suffixes dropped during
// person-name normalization.
var nameSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"phd": true, "md": true, "dds": true, "esq": true,
}

func normalizePersonName(s string) string {
	s = stripPunctuation(strings.ToLower(s))
	tokens := strings.Fields(s)
	for len(tokens) > 1 && nameSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// addressAbbreviations maps street-name tokens to their postal short
// forms. Applied token-wise, so "West Main Street" and "W Main St"
// canonicalize identically.
var addressAbbreviations = map[string]string{
	"street": "st", "avenue": "ave", "boulevard": "blvd", "drive": "dr",
	"road": "rd", "lane": "ln", "court": "ct", "circle": "cir",
	"place": "pl", "apartment": "apt", "suite": "ste", "highway": "hwy",
	"north": "n", "south": "s", "east": "e", "west": "w",
}

func normalizeAddress(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' || r == '#' {
			return ' '
		}
		return r
	}, s)

	tokens := strings.Fields(s)
	for i, token := range tokens {
		if abbr, ok := addressAbbreviations[token]; ok {
			tokens[i] = abbr
		}
	}
	return strings.Join(tokens, " ")
}
