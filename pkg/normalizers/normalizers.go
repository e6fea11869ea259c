// Package normalizers provides the field normalizations used for identity
// fingerprints and matcher indexes.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nfkd", NFKD)
	Register("unaccent", Unaccent)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("nusername", NormalizeUsername)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// ApplyChain applies multiple normalizers in sequence. Unknown names are skipped.
func ApplyChain(value string, names ...string) string {
	for _, name := range names {
		if fn, ok := registry[name]; ok {
			value = fn(value)
		}
	}
	return value
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NFKD applies Unicode compatibility decomposition.
func NFKD(s string) string {
	return norm.NFKD.String(s)
}

// Unaccent decomposes s with NFKD and drops the combining marks, so "Jöhn"
// becomes "John".
func Unaccent(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return NFKD(s)
	}
	return out
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(NFKD(s)))
}

// NormalizeName unaccents, lowercases and collapses inner whitespace.
func NormalizeName(s string) string {
	s = Unaccent(strings.TrimSpace(s))
	return strings.ToLower(whitespaceRegex.ReplaceAllString(s, " "))
}

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(NFKD(s)))
}

// IsBlank reports whether s is nil, empty or whitespace only.
func IsBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
