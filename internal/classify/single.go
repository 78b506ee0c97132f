package classify

import (
	"context"
	"fmt"

	"github.com/jackzampolin/radlabel/internal/extract"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/prompts/labeling"
	"github.com/jackzampolin/radlabel/internal/records"
)

type singleStage struct{}

// SingleStage sends the instruction prompt and report in one call and expects
// a label for every finding back.
func SingleStage() Protocol {
	return singleStage{}
}

func (singleStage) Name() string {
	return ProtocolSingle
}

func (singleStage) Label(ctx context.Context, e *Engine, rec records.Record) (findings.LabelMap, error) {
	system, hash, err := e.render(labeling.SinglePromptKey, labeling.NewInstructionData())
	if err != nil {
		return nil, err
	}

	raw, err := e.call(ctx, prompt{
		key:    labeling.SinglePromptKey,
		hash:   hash,
		system: system,
		user:   rec.Text,
		record: rec,
	})
	if err != nil {
		return nil, err
	}

	obj, err := extract.Object(raw)
	if err != nil {
		return nil, err
	}
	return e.labelsFrom(obj, raw)
}

// labelsFrom validates a single-stage object and parses every label.
// Keys beyond the canonical findings are ignored.
func (e *Engine) labelsFrom(obj map[string]any, raw string) (findings.LabelMap, error) {
	if err := e.labelSchema.Validate(obj); err != nil {
		return nil, &SchemaError{Stage: ProtocolSingle, Reason: "schema validation failed", Raw: extract.Snippet(raw), Err: err}
	}

	labels := findings.NewLabelMap()
	for _, f := range findings.All() {
		v, ok := obj[string(f)]
		if !ok {
			return nil, &SchemaError{Stage: ProtocolSingle, Finding: f, Reason: "missing", Raw: extract.Snippet(raw)}
		}
		s, ok := v.(string)
		if !ok {
			return nil, &SchemaError{Stage: ProtocolSingle, Finding: f, Reason: fmt.Sprintf("value %v is not a string", v), Raw: extract.Snippet(raw)}
		}
		l, err := findings.ParseLabel(s)
		if err != nil {
			return nil, &SchemaError{Stage: ProtocolSingle, Finding: f, Reason: "invalid label", Raw: extract.Snippet(raw), Err: err}
		}
		labels[f] = l
	}
	return labels, nil
}
