// Package jsonutil decodes JSON produced by language models, which arrives
// with varying amounts of decoration: Markdown code fences, leading prose,
// or double-escaped unicode sequences.
package jsonutil

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("jsonutil: no JSON payload found")

// UnmarshalModelOutput tries to unmarshal model output into v with best effort:
//  1. direct unmarshal
//  2. strip Markdown code fences and retry
//  3. slice out the first bracketed JSON value and retry
//
// It returns an error only when every strategy fails; callers treat that as a
// recoverable malformed-output condition, not a crash.
func UnmarshalModelOutput(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	stripped := StripFences(trimmed)
	if err := json.Unmarshal([]byte(stripped), v); err == nil {
		return nil
	}
	if inner, ok := extractJSON(stripped); ok {
		return json.Unmarshal([]byte(inner), v)
	}
	return ErrNoJSON
}

// StripFences removes a surrounding Markdown code fence (``` or ```json).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line ("json", "JSON", or empty)
		first := strings.TrimSpace(s[:i])
		if len(first) <= 8 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSON returns the first balanced top-level JSON object or array in s.
func extractJSON(s string) (string, bool) {
	start := -1
	var open, closing byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				closing = '}'
			} else {
				closing = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
