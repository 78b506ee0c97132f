// Package prompts provides prompt management with embedded defaults and
// file-based overrides.
//
// Embedded .tmpl files in code are the source of truth for defaults. An
// override replaces the text of one prompt key for the lifetime of the
// resolver, typically loaded from a file named on the command line or in the
// config.
//
// Resolution order for a key:
//  1. Override (if set)
//  2. Embedded default (from .tmpl files in code)
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: labeling.mention
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// Override replaces an embedded prompt's text.
type Override struct {
	Key    string `json:"key"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"` // file path the text came from
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"`
	Source     string   `json:"source,omitempty"`
	Hash       string   `json:"hash"` // recorded with each call for traceability
}
