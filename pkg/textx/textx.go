// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// isSpace extends unicode.IsSpace with the byte order mark, which editors
// and converters prepend to otherwise identical text.
func isSpace(r rune) bool {
	return r == '\uFEFF' || unicode.IsSpace(r)
}

// CollapseWhitespace trims s and replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

// TrimmedLen returns the number of runes in s after trimming surrounding whitespace.
func TrimmedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimFunc(s, isSpace))
}
