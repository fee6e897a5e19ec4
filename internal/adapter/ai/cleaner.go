// Package ai holds the provider-independent pieces of the LLM integration:
// prompt templates and recovery of the JSON object from a chat completion.
package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a completion contains no JSON object.
var ErrNoJSON = errors.New("model returned non-JSON content")

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// CleanJSON returns the first complete JSON object found in a model completion.
// Markdown fences and surrounding prose are dropped; a trailing comma before a
// closing bracket is tolerated.
func CleanJSON(content string) (string, error) {
	s := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	obj, ok := firstObject(s)
	if !ok {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(obj)) {
		return obj, nil
	}
	if fixed := trailingCommaRe.ReplaceAllString(obj, "$1"); json.Valid([]byte(fixed)) {
		return fixed, nil
	}
	return "", ErrNoJSON
}

// firstObject finds the first balanced {...} in s, ignoring braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
