package llmcall

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/radlabel/internal/providers"
)

// syncBuffer is a bytes.Buffer safe for the sink goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFromChatResult(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Error("expected nil for nil result")
	}

	temp := 1.0
	result := &providers.ChatResult{
		Content:          "Yes",
		PromptTokens:     100,
		CompletionTokens: 1,
		ExecutionTime:    250 * time.Millisecond,
		Provider:         "gemini",
		ModelUsed:        "gemini-2.0-flash",
		Success:          true,
	}
	call := FromChatResult(result, RecordOptions{
		PatientID:   "p1",
		ReportID:    "s1",
		Finding:     "Edema",
		PromptKey:   "labeling.finding",
		PromptHash:  "abc",
		Temperature: &temp,
	})

	if call.ID == "" {
		t.Error("expected call id")
	}
	if call.LatencyMs != 250 {
		t.Errorf("LatencyMs = %d, want 250", call.LatencyMs)
	}
	if call.PatientID != "p1" || call.Finding != "Edema" || call.PromptKey != "labeling.finding" {
		t.Errorf("unexpected call: %+v", call)
	}
	if call.Error != "" {
		t.Error("successful call should carry no error")
	}

	failed := FromChatResult(&providers.ChatResult{Success: false, ErrorMessage: "timeout"}, RecordOptions{})
	if failed.Error != "timeout" {
		t.Errorf("Error = %q, want timeout", failed.Error)
	}
}

func TestSinkAndRead(t *testing.T) {
	var buf syncBuffer
	sink := NewSink(SinkConfig{Writer: &buf, BatchSize: 2, FlushInterval: time.Hour})
	sink.Start(context.Background())

	rec := NewRecorder(sink, "run-1")
	for _, id := range []string{"s1", "s2", "s3"} {
		rec.Record(&providers.ChatResult{Provider: "mock", Success: true, Content: "{}"}, RecordOptions{
			PatientID: "p1",
			ReportID:  id,
			PromptKey: "labeling.mention",
		})
	}

	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if sink.Written() != 3 {
		t.Errorf("Written() = %d, want 3", sink.Written())
	}
	sink.Stop()

	calls, err := Read(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	for _, c := range calls {
		if c.RunID != "run-1" {
			t.Errorf("RunID = %q, want run-1", c.RunID)
		}
	}
}

func TestSink_StopFlushes(t *testing.T) {
	var buf syncBuffer
	sink := NewSink(SinkConfig{Writer: &buf, BatchSize: 100, FlushInterval: time.Hour})
	sink.Start(context.Background())

	sink.Send(&Call{ID: "c1", PromptKey: "k"})
	sink.Stop()

	if !strings.Contains(buf.String(), `"id":"c1"`) {
		t.Errorf("expected record flushed on stop, got %q", buf.String())
	}

	// Sends after stop are dropped, not panics.
	sink.Send(&Call{ID: "c2"})
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(&providers.ChatResult{}, RecordOptions{})
	r.RecordCall(&Call{})
	if r.RunID() != "" {
		t.Error("expected empty run id")
	}
	NewRecorder(nil, "x").Record(&providers.ChatResult{}, RecordOptions{})
}

func TestList(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	yes, no := true, false
	calls := []Call{
		{ID: "3", Timestamp: base.Add(3 * time.Minute), PatientID: "p2", PromptKey: "labeling.finding", Success: false},
		{ID: "1", Timestamp: base.Add(1 * time.Minute), PatientID: "p1", PromptKey: "labeling.mention", Success: true},
		{ID: "2", Timestamp: base.Add(2 * time.Minute), PatientID: "p1", PromptKey: "labeling.finding", Success: true},
	}

	tests := []struct {
		name   string
		filter QueryFilter
		want   []string
	}{
		{"all ordered", QueryFilter{}, []string{"1", "2", "3"}},
		{"by patient", QueryFilter{PatientID: "p1"}, []string{"1", "2"}},
		{"failed only", QueryFilter{Success: &no}, []string{"3"}},
		{"succeeded findings", QueryFilter{Success: &yes, PromptKey: "labeling.finding"}, []string{"2"}},
		{"offset and limit", QueryFilter{Offset: 1, Limit: 1}, []string{"2"}},
		{"offset past end", QueryFilter{Offset: 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := List(calls, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("List() returned %d calls, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if c.ID != tt.want[i] {
					t.Errorf("call %d = %s, want %s", i, c.ID, tt.want[i])
				}
			}
		})
	}

	counts := CountByPromptKey(calls, QueryFilter{})
	if counts["labeling.finding"] != 2 || counts["labeling.mention"] != 1 {
		t.Errorf("CountByPromptKey() = %v", counts)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	os.WriteFile(path, []byte("{\"id\":\"a\",\"prompt_key\":\"k\"}\n\n{\"id\":\"b\",\"prompt_key\":\"k\"}\n"), 0o644)

	calls, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("got %d calls, want 2", len(calls))
	}

	os.WriteFile(path, []byte("not json\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed trace")
	}
}
