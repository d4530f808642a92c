package util

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reFilename   = regexp.MustCompile(`[^\w\-]+`)
	stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize is the comparison key used across the pipeline: lowercase,
// trimmed, with combining marks removed. It is idempotent.
func Normalize(input string) string {
	s := strings.TrimSpace(strings.ToLower(input))
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		return s
	}
	// Mark removal can expose leading or trailing spaces (e.g. " ́").
	return strings.TrimSpace(out)
}

// NormalizeValue normalizes strings and returns "" for anything else.
func NormalizeValue(v any) string {
	switch t := v.(type) {
	case string:
		return Normalize(t)
	case *string:
		if t == nil {
			return ""
		}
		return Normalize(*t)
	case fmt.Stringer:
		if t == nil {
			return ""
		}
		return Normalize(t.String())
	default:
		return ""
	}
}

// Tokenize splits on whitespace only; punctuation stays attached to its word.
func Tokenize(input string) []string {
	return strings.Fields(input)
}

func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Capitalize upper-cases the first rune and lower-cases the rest.
func Capitalize(input string) string {
	if input == "" {
		return ""
	}
	r := []rune(strings.ToLower(input))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func SanitizeFilename(name string) string {
	if strings.TrimSpace(name) == "" {
		return "sin_periodo"
	}
	out := strings.Trim(reFilename.ReplaceAllString(name, "_"), "_")
	if out == "" {
		return "sin_periodo"
	}
	return out
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
