// Package extract recovers a structured object from a loosely formatted model
// response. Models wrap their JSON in code fences, prefix it with a language
// tag or surround it with prose; the extractor tolerates all three and leaves
// key and value validation to the caller.
package extract

import (
	"encoding/json"
	"strings"
)

const (
	fence       = "`"
	languageTag = "json"
)

// Object extracts the single JSON object embedded in raw.
//
// Fence characters and whitespace are stripped from both ends, a leading
// "json" language tag is dropped, and the text between the first '{' and the
// last '}' (inclusive) is parsed. Failures are *Error values matching
// ErrExtraction.
func Object(raw string) (map[string]any, error) {
	body := Clean(raw)
	if body == "" {
		return nil, newError(ErrEmptyInput, raw, nil)
	}

	candidate, ok := Candidate(body)
	if !ok {
		return nil, newError(ErrNoObject, raw, nil)
	}

	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, newError(ErrMalformed, raw, err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, newError(ErrNotObject, raw, nil)
	}
	return obj, nil
}

// Clean strips wrapping fence markers, surrounding whitespace and a leading
// language tag.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, fence)
	s = strings.TrimSpace(s)

	if len(s) >= len(languageTag) && strings.EqualFold(s[:len(languageTag)], languageTag) {
		s = strings.TrimSpace(s[len(languageTag):])
	}
	return s
}

// Candidate returns the slice from the first '{' through the last '}'.
func Candidate(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
