// Package labeling holds the embedded prompts for report labeling.
package labeling

import (
	_ "embed"

	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/prompts"
)

//go:embed single.tmpl
var singlePrompt string

//go:embed mention.tmpl
var mentionPrompt string

//go:embed finding.tmpl
var findingPrompt string

// Prompt keys
const (
	SinglePromptKey  = "labeling.single.system"
	MentionPromptKey = "labeling.mention"
	FindingPromptKey = "labeling.finding"
)

// InstructionData feeds the single-stage system prompt.
type InstructionData struct {
	Findings []string
}

// MentionData feeds the Stage A mention prompt.
type MentionData struct {
	Findings []string
	Report   string
}

// FindingData feeds the Stage B per-finding prompt.
type FindingData struct {
	Finding string
	Report  string
}

// NewInstructionData returns data listing every finding in canonical order.
func NewInstructionData() InstructionData {
	return InstructionData{Findings: findings.Names()}
}

// NewMentionData returns Stage A data for a report.
func NewMentionData(report string) MentionData {
	return MentionData{Findings: findings.Names(), Report: report}
}

// NewFindingData returns Stage B data for one finding of a report.
func NewFindingData(f findings.Finding, report string) FindingData {
	return FindingData{Finding: string(f), Report: report}
}

// RegisterPrompts registers the labeling prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SinglePromptKey,
		Text:        singlePrompt,
		Description: "Single-stage system instructions - label every finding in one call",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         MentionPromptKey,
		Text:        mentionPrompt,
		Description: "Stage A - ask which findings the report mentions",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         FindingPromptKey,
		Text:        findingPrompt,
		Description: "Stage B - ask whether one mentioned finding is present",
	})
}
