package classify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/radlabel/internal/extract"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/prompts"
	"github.com/jackzampolin/radlabel/internal/prompts/labeling"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

var findingPattern = regexp.MustCompile(`that '([^']+)' was mentioned`)

// mentionJSON renders a Stage A answer marking the given findings mentioned.
func mentionJSON(mentioned ...findings.Finding) string {
	set := make(map[findings.Finding]bool)
	for _, f := range mentioned {
		set[f] = true
	}
	parts := make([]string, 0, len(findings.All()))
	for _, f := range findings.All() {
		v := "False"
		if set[f] {
			v = "True"
		}
		parts = append(parts, fmt.Sprintf("%q: %q", f, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// labelJSON renders a single-stage answer with every finding set to l except
// the overrides.
func labelJSON(l findings.Label, overrides map[findings.Finding]string) string {
	parts := make([]string, 0, len(findings.All()))
	for _, f := range findings.All() {
		v := string(l)
		if o, ok := overrides[f]; ok {
			v = o
		}
		parts = append(parts, fmt.Sprintf("%q: %q", f, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// scripted answers Stage A with mention and Stage B from answers.
type scripted struct {
	mu       sync.Mutex
	mention  string
	answers  map[findings.Finding]string
	asked    []findings.Finding
	stageErr map[findings.Finding]error
}

func (s *scripted) respond(req *providers.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := req.Messages[len(req.Messages)-1].Content
	m := findingPattern.FindStringSubmatch(user)
	if m == nil {
		return s.mention, nil
	}
	f := findings.Finding(m[1])
	s.asked = append(s.asked, f)
	if err := s.stageErr[f]; err != nil {
		return "", err
	}
	return s.answers[f], nil
}

func newEngine(t *testing.T, client providers.LLMClient, cfg Config) *Engine {
	t.Helper()
	cfg.Client = client
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestTwoStage_EndToEnd(t *testing.T) {
	s := &scripted{
		mention: "```json\n" + mentionJSON(findings.Pneumothorax, findings.Cardiomegaly) + "\n```",
		answers: map[findings.Finding]string{
			findings.Pneumothorax: "No",
			findings.Cardiomegaly: "Yes",
		},
	}
	mock := providers.NewMockClient()
	mock.Respond = s.respond

	e := newEngine(t, mock, Config{Protocol: TwoStage()})
	rec := records.New("p1", "s1", "No pneumothorax. Heart enlarged.")

	labels, err := e.Classify(context.Background(), rec)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !labels.Complete() {
		t.Fatal("label map is incomplete")
	}
	if labels[findings.Pneumothorax] != findings.No {
		t.Errorf("Pneumothorax = %s, want No", labels[findings.Pneumothorax])
	}
	if labels[findings.Cardiomegaly] != findings.Yes {
		t.Errorf("Cardiomegaly = %s, want Yes", labels[findings.Cardiomegaly])
	}
	if n := labels.Count(findings.Undefined); n != 12 {
		t.Errorf("%d findings Undefined, want 12", n)
	}

	// Stage B asks in canonical order, and only about mentioned findings.
	if len(s.asked) != 2 || s.asked[0] != findings.Cardiomegaly || s.asked[1] != findings.Pneumothorax {
		t.Errorf("Stage B asked %v", s.asked)
	}

	stats := e.Stats()
	if stats.Calls != 3 {
		t.Errorf("Calls = %d, want 3", stats.Calls)
	}
	if stats.StageAShortCircuits != 12 {
		t.Errorf("StageAShortCircuits = %d, want 12", stats.StageAShortCircuits)
	}

	// Every call is stateless: the report text travels with each prompt.
	for i, req := range mock.Requests() {
		if !strings.Contains(req.Messages[len(req.Messages)-1].Content, "No pneumothorax. Heart enlarged.") {
			t.Errorf("request %d is missing the report text", i)
		}
	}
}

func TestTwoStage_ShortCircuit(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = mentionJSON()

	e := newEngine(t, mock, Config{})
	labels, err := e.Classify(context.Background(), records.New("p1", "s1", "Unremarkable."))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("made %d calls, want exactly 1", mock.RequestCount())
	}
	if labels.Count(findings.Undefined) != len(findings.All()) {
		t.Error("expected every finding Undefined")
	}
}

func TestTwoStage_BooleanMentions(t *testing.T) {
	obj := strings.ReplaceAll(strings.ReplaceAll(mentionJSON(findings.Edema), `"True"`, "true"), `"False"`, "false")
	s := &scripted{mention: obj, answers: map[findings.Finding]string{findings.Edema: "  Maybe\n"}}
	mock := providers.NewMockClient()
	mock.Respond = s.respond

	e := newEngine(t, mock, Config{})
	labels, err := e.Classify(context.Background(), records.New("p1", "s1", "Possible edema."))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if labels[findings.Edema] != findings.Maybe {
		t.Errorf("Edema = %s, want Maybe", labels[findings.Edema])
	}
	if e.Stats().MaybeFallbacks != 0 {
		t.Error("trimmed exact answer must not count as a fallback")
	}
}

func TestTwoStage_MaybeFallback(t *testing.T) {
	s := &scripted{
		mention: mentionJSON(findings.Edema, findings.Fracture),
		answers: map[findings.Finding]string{
			findings.Edema:    "Probably yes",
			findings.Fracture: "yes",
		},
	}
	mock := providers.NewMockClient()
	mock.Respond = s.respond

	e := newEngine(t, mock, Config{})
	labels, err := e.Classify(context.Background(), records.New("p1", "s1", "text"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if labels[findings.Edema] != findings.Maybe || labels[findings.Fracture] != findings.Maybe {
		t.Errorf("expected Maybe fallbacks, got Edema=%s Fracture=%s", labels[findings.Edema], labels[findings.Fracture])
	}
	if got := e.Stats().MaybeFallbacks; got != 2 {
		t.Errorf("MaybeFallbacks = %d, want 2", got)
	}
}

func TestTwoStage_StageAFailures(t *testing.T) {
	missing := strings.Replace(mentionJSON(), `"Edema": "False", `, "", 1)

	tests := []struct {
		name     string
		response string
		kind     Kind
	}{
		{"no object", "I cannot help with that.", KindExtraction},
		{"malformed", "{Edema: True}", KindExtraction},
		{"missing finding", missing, KindSchema},
		{"bad value", strings.Replace(mentionJSON(), `"Edema": "False"`, `"Edema": "Perhaps"`, 1), KindSchema},
		{"numeric value", strings.Replace(mentionJSON(), `"Edema": "False"`, `"Edema": 1`, 1), KindSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			mock.ResponseText = tt.response

			e := newEngine(t, mock, Config{})
			_, err := e.Classify(context.Background(), records.New("p1", "s1", "text"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf() = %s, want %s (err: %v)", got, tt.kind, err)
			}
			if mock.RequestCount() != 1 {
				t.Errorf("made %d calls, want 1 (no retry on %s)", mock.RequestCount(), tt.kind)
			}
		})
	}
}

func TestTwoStage_ExtraKeysIgnored(t *testing.T) {
	obj := strings.TrimSuffix(mentionJSON(), "}") + `, "Hernia": "True"}`
	mock := providers.NewMockClient()
	mock.ResponseText = obj

	e := newEngine(t, mock, Config{})
	labels, err := e.Classify(context.Background(), records.New("p1", "s1", "text"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if _, ok := labels[findings.Finding("Hernia")]; ok {
		t.Error("unknown finding leaked into labels")
	}
}

func TestTwoStage_StageBTransportFailsRecord(t *testing.T) {
	s := &scripted{
		mention:  mentionJSON(findings.Edema, findings.Pneumonia),
		answers:  map[findings.Finding]string{findings.Edema: "Yes"},
		stageErr: map[findings.Finding]error{findings.Pneumonia: errors.New("connection reset")},
	}
	mock := providers.NewMockClient()
	mock.Respond = s.respond

	e := newEngine(t, mock, Config{})
	_, err := e.Classify(context.Background(), records.New("p1", "s1", "text"))
	if KindOf(err) != KindTransport {
		t.Fatalf("KindOf() = %s, want transport (err: %v)", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "Pneumonia") {
		t.Errorf("error should name the finding: %v", err)
	}
}

func TestSingleStage(t *testing.T) {
	t.Run("fenced response", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ResponseText = "Here you go:\n```json\n" + labelJSON(findings.Undefined, map[findings.Finding]string{
			findings.Edema:          "yes",
			findings.SupportDevices: "No",
		}) + "\n```"

		e := newEngine(t, mock, Config{Protocol: SingleStage()})
		labels, err := e.Classify(context.Background(), records.New("p1", "s1", "ET tube in place."))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if labels[findings.Edema] != findings.Yes || labels[findings.SupportDevices] != findings.No {
			t.Errorf("unexpected labels: %v", labels)
		}

		reqs := mock.Requests()
		if len(reqs) != 1 {
			t.Fatalf("made %d calls, want 1", len(reqs))
		}
		if reqs[0].System() == "" {
			t.Error("expected system instructions")
		}
		if got := reqs[0].Conversation(); len(got) != 1 || got[0].Content != "ET tube in place." {
			t.Errorf("expected report text as the user message, got %+v", got)
		}
	})

	t.Run("invalid label", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ResponseText = labelJSON(findings.No, map[findings.Finding]string{findings.Edema: "Likely"})

		e := newEngine(t, mock, Config{Protocol: SingleStage()})
		_, err := e.Classify(context.Background(), records.New("p1", "s1", "x"))
		if KindOf(err) != KindSchema {
			t.Fatalf("KindOf() = %s, want schema (err: %v)", KindOf(err), err)
		}
		var se *SchemaError
		if !errors.As(err, &se) || se.Finding != findings.Edema {
			t.Errorf("expected schema error naming Edema, got %v", err)
		}
		if RawSnippet(err) == "" {
			t.Error("expected raw snippet on schema error")
		}
	})

	t.Run("not a json object", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ResponseText = "No findings."

		e := newEngine(t, mock, Config{Protocol: SingleStage()})
		_, err := e.Classify(context.Background(), records.New("p1", "s1", "x"))
		if !errors.Is(err, extract.ErrNoObject) {
			t.Errorf("expected ErrNoObject, got %v", err)
		}
	})

	t.Run("prompt override", func(t *testing.T) {
		r := prompts.NewResolver(nil)
		labeling.RegisterPrompts(r)
		if err := r.SetOverride(prompts.Override{Key: labeling.SinglePromptKey, Text: "Custom instructions."}); err != nil {
			t.Fatal(err)
		}

		mock := providers.NewMockClient()
		mock.ResponseText = labelJSON(findings.Undefined, nil)

		e := newEngine(t, mock, Config{Protocol: SingleStage(), Resolver: r})
		if _, err := e.Classify(context.Background(), records.New("p1", "s1", "x")); err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if got := mock.Requests()[0].System(); got != "Custom instructions." {
			t.Errorf("System() = %q", got)
		}
	})
}

func TestEngine_InputError(t *testing.T) {
	mock := providers.NewMockClient()
	e := newEngine(t, mock, Config{})

	_, err := e.Classify(context.Background(), records.New("p1", "  ", "No acute findings."))
	if KindOf(err) != KindInput {
		t.Errorf("KindOf() = %s, want input", KindOf(err))
	}
	if mock.RequestCount() != 0 {
		t.Error("no call may be made for an invalid record")
	}
}

func TestEngine_Retry(t *testing.T) {
	t.Run("default makes one attempt", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ShouldFail = true

		e := newEngine(t, mock, Config{})
		_, err := e.Classify(context.Background(), records.New("p1", "s1", "x"))
		if KindOf(err) != KindTransport {
			t.Errorf("KindOf() = %s, want transport", KindOf(err))
		}
		if mock.RequestCount() != 1 {
			t.Errorf("made %d calls, want 1", mock.RequestCount())
		}
		if e.Stats().Retries != 0 {
			t.Errorf("Retries = %d, want 0", e.Stats().Retries)
		}
	})

	t.Run("transport errors retried up to max attempts", func(t *testing.T) {
		calls := 0
		mock := providers.NewMockClient()
		mock.Respond = func(req *providers.ChatRequest) (string, error) {
			calls++
			if calls < 3 {
				return "", &providers.TransportError{Provider: "mock", StatusCode: 503, Err: errors.New("unavailable")}
			}
			return mentionJSON(), nil
		}

		e := newEngine(t, mock, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
		if _, err := e.Classify(context.Background(), records.New("p1", "s1", "x")); err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		stats := e.Stats()
		if stats.Calls != 3 || stats.Retries != 2 {
			t.Errorf("Calls = %d, Retries = %d, want 3 and 2", stats.Calls, stats.Retries)
		}
	})

	t.Run("extraction errors are not retried", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ResponseText = "garbage"

		e := newEngine(t, mock, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
		e.Classify(context.Background(), records.New("p1", "s1", "x"))
		if mock.RequestCount() != 1 {
			t.Errorf("made %d calls, want 1", mock.RequestCount())
		}
	})
}

func TestEngine_Canceled(t *testing.T) {
	mock := providers.NewMockClient()
	e := newEngine(t, mock, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Classify(ctx, records.New("p1", "s1", "x"))
	if KindOf(err) != KindCanceled {
		t.Errorf("KindOf() = %s, want canceled", KindOf(err))
	}
}

func TestEngine_Pacing(t *testing.T) {
	s := &scripted{
		mention: mentionJSON(findings.Edema, findings.Fracture),
		answers: map[findings.Finding]string{findings.Edema: "Yes", findings.Fracture: "No"},
	}
	mock := providers.NewMockClient()
	mock.Respond = s.respond

	e := newEngine(t, mock, Config{CallDelay: 30 * time.Millisecond, FindingDelay: 10 * time.Millisecond})
	start := time.Now()
	if _, err := e.Classify(context.Background(), records.New("p1", "s1", "x")); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	// Three calls need at least two full call intervals between them.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("three calls took %v, expected pacing", elapsed)
	}

	e.SetFindingDelay(time.Second)
	if e.FindingDelay() != time.Second {
		t.Error("SetFindingDelay() not applied")
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(Config{}); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewEngine(Config{Client: providers.NewMockClient(), MaxAttempts: -1}); err == nil {
		t.Error("expected error for negative attempts")
	}
	if _, err := NewEngine(Config{Client: providers.NewMockClient(), FindingDelay: -time.Second}); err == nil {
		t.Error("expected error for negative delay")
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"single", ProtocolSingle, false},
		{"Single-Stage", ProtocolSingle, false},
		{"two-stage", ProtocolTwoStage, false},
		{"", ProtocolTwoStage, false},
		{"three-stage", "", true},
	}
	for _, tt := range tests {
		p, err := ParseProtocol(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProtocol(%q) error = %v", tt.in, err)
			continue
		}
		if err == nil && p.Name() != tt.want {
			t.Errorf("ParseProtocol(%q) = %s, want %s", tt.in, p.Name(), tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{context.Canceled, KindCanceled},
		{fmt.Errorf("wrapped: %w", &providers.TransportError{Provider: "x", Err: errors.New("down")}), KindTransport},
		{&SchemaError{Stage: "single", Reason: "missing"}, KindSchema},
		{&records.InputError{Field: "content", Reason: "is missing"}, KindInput},
		{errors.New("other"), KindUnknown},
		{&providers.TransportError{Provider: "x", Err: fmt.Errorf("client timeout: %w", context.DeadlineExceeded)}, KindTransport},
		{fmt.Errorf("finding Edema: %w", context.DeadlineExceeded), KindCanceled},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	_, err := extract.Object("nothing here")
	if KindOf(err) != KindExtraction {
		t.Errorf("KindOf(extraction) = %s", KindOf(err))
	}
}
