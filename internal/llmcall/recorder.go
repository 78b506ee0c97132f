package llmcall

import (
	"github.com/jackzampolin/radlabel/internal/providers"
)

// Recorder handles fire-and-forget call recording via a Sink.
type Recorder struct {
	sink  *Sink
	runID string
}

// NewRecorder creates a new call recorder. A nil sink disables recording.
func NewRecorder(sink *Sink, runID string) *Recorder {
	return &Recorder{sink: sink, runID: runID}
}

// RunID returns the run identifier stamped on every call.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record captures a call asynchronously.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil || r.sink == nil {
		return // No sink configured, skip recording
	}
	if opts.RunID == "" {
		opts.RunID = r.runID
	}
	r.sink.Send(FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.sink == nil || call == nil {
		return
	}
	if call.RunID == "" {
		call.RunID = r.runID
	}
	r.sink.Send(call)
}
