package classify

import (
	"github.com/jackzampolin/radlabel/internal/findings"
)

// LabelSchema describes the single-stage response: every finding mapped to
// one of the four labels. Label spelling is checked case-insensitively by
// findings.ParseLabel after validation, so the schema only requires strings.
func LabelSchema() map[string]any {
	names := findings.Names()
	props := make(map[string]any, len(names))
	for _, n := range names {
		props[n] = map[string]any{
			"type":        "string",
			"description": "Yes, No, Maybe or Undefined",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   names,
	}
}

// MentionSchema describes the Stage A response: every finding mapped to a
// boolean or the string "True"/"False".
func MentionSchema() map[string]any {
	names := findings.Names()
	props := make(map[string]any, len(names))
	for _, n := range names {
		props[n] = map[string]any{
			"type":        []string{"boolean", "string"},
			"description": "True if the report mentions the finding at all",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   names,
	}
}
