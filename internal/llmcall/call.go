// Package llmcall provides label service call recording and querying for
// traceability. Every call is recorded with its prompt key, response, and
// metrics as one JSON line in a trace file.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/radlabel/internal/providers"
)

// Call represents a recorded label service call.
type Call struct {
	// Unique identifier
	ID string `json:"id" yaml:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	LatencyMs int       `json:"latency_ms" yaml:"latency_ms"`

	// Context references
	RunID     string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	PatientID string `json:"patient_id,omitempty" yaml:"patient_id,omitempty"`
	ReportID  string `json:"report_id,omitempty" yaml:"report_id,omitempty"`
	Finding   string `json:"finding,omitempty" yaml:"finding,omitempty"` // Stage B only

	// Prompt traceability
	PromptKey  string `json:"prompt_key" yaml:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty" yaml:"prompt_hash,omitempty"` // links the call to the exact prompt text used
	Attempt    int    `json:"attempt,omitempty" yaml:"attempt,omitempty"`

	// Model info
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`

	// Response
	Response string `json:"response" yaml:"response"`

	// Status
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	// Context references (all optional)
	RunID     string
	PatientID string
	ReportID  string
	Finding   string

	// Prompt identification (required for traceability)
	PromptKey  string
	PromptHash string
	Attempt    int

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		RunID:        opts.RunID,
		PatientID:    opts.PatientID,
		ReportID:     opts.ReportID,
		Finding:      opts.Finding,
		PromptKey:    opts.PromptKey,
		PromptHash:   opts.PromptHash,
		Attempt:      opts.Attempt,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     result.Content,
		Success:      result.Success,
	}

	if opts.Temperature != nil {
		call.Temperature = opts.Temperature
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	return call
}
