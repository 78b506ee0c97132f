package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackzampolin/radlabel/internal/extract"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/prompts/labeling"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

// StageMention names Stage A in errors and traces.
const StageMention = "mention"

type twoStage struct{}

// TwoStage first asks which findings the report mentions (Stage A), then asks
// about each mentioned finding on its own (Stage B). Findings that are not
// mentioned stay Undefined without further calls.
func TwoStage() Protocol {
	return twoStage{}
}

func (twoStage) Name() string {
	return ProtocolTwoStage
}

func (twoStage) Label(ctx context.Context, e *Engine, rec records.Record) (findings.LabelMap, error) {
	mentions, err := e.mentions(ctx, rec)
	if err != nil {
		return nil, err
	}

	labels := findings.NewLabelMap()
	mentioned := mentions.Mentioned()
	e.stats.shortCircuits.Add(int64(len(findings.All()) - len(mentioned)))

	for _, f := range mentioned {
		if err := providers.Sleep(ctx, e.FindingDelay()); err != nil {
			return nil, err
		}
		l, err := e.presence(ctx, rec, f)
		if err != nil {
			return nil, fmt.Errorf("finding %s: %w", f, err)
		}
		labels[f] = l
	}
	return labels, nil
}

// mentions runs Stage A.
func (e *Engine) mentions(ctx context.Context, rec records.Record) (findings.MentionMap, error) {
	text, hash, err := e.render(labeling.MentionPromptKey, labeling.NewMentionData(rec.Text))
	if err != nil {
		return nil, err
	}

	raw, err := e.call(ctx, prompt{
		key:    labeling.MentionPromptKey,
		hash:   hash,
		user:   text,
		record: rec,
	})
	if err != nil {
		return nil, err
	}

	obj, err := extract.Object(raw)
	if err != nil {
		return nil, err
	}
	return e.mentionsFrom(obj, raw)
}

// mentionsFrom validates a Stage A object. Keys beyond the canonical
// findings are ignored.
func (e *Engine) mentionsFrom(obj map[string]any, raw string) (findings.MentionMap, error) {
	if err := e.mentionSchema.Validate(obj); err != nil {
		return nil, &SchemaError{Stage: StageMention, Reason: "schema validation failed", Raw: extract.Snippet(raw), Err: err}
	}

	out := make(findings.MentionMap, len(findings.All()))
	for _, f := range findings.All() {
		v, ok := obj[string(f)]
		if !ok {
			return nil, &SchemaError{Stage: StageMention, Finding: f, Reason: "missing", Raw: extract.Snippet(raw)}
		}
		b, ok := parseMention(v)
		if !ok {
			return nil, &SchemaError{Stage: StageMention, Finding: f, Reason: fmt.Sprintf("value %v is not True or False", v), Raw: extract.Snippet(raw)}
		}
		out[f] = b
	}
	return out, nil
}

// parseMention accepts JSON booleans and the strings "True"/"False" in any case.
func parseMention(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// presence runs Stage B for one finding. An answer other than exactly Yes,
// No or Maybe falls back to Maybe.
func (e *Engine) presence(ctx context.Context, rec records.Record, f findings.Finding) (findings.Label, error) {
	text, hash, err := e.render(labeling.FindingPromptKey, labeling.NewFindingData(f, rec.Text))
	if err != nil {
		return "", err
	}

	raw, err := e.call(ctx, prompt{
		key:     labeling.FindingPromptKey,
		hash:    hash,
		user:    text,
		record:  rec,
		finding: f,
	})
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(raw)
	switch l := findings.Label(answer); l {
	case findings.Yes, findings.No, findings.Maybe:
		return l, nil
	}

	e.stats.maybeFallbacks.Add(1)
	e.logger.Warn("unexpected answer, defaulting to Maybe",
		"patient_id", rec.PatientID,
		"report_id", rec.ReportID,
		"finding", f,
		"response", extract.Snippet(answer))
	return findings.Maybe, nil
}
