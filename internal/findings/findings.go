// Package findings defines the fixed set of clinical findings a report is
// labeled against and the four-valued label assigned to each of them.
package findings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Finding is one of the 14 CheXpert observation categories.
type Finding string

const (
	Atelectasis               Finding = "Atelectasis"
	Cardiomegaly              Finding = "Cardiomegaly"
	Consolidation             Finding = "Consolidation"
	Edema                     Finding = "Edema"
	EnlargedCardiomediastinum Finding = "Enlarged Cardiomediastinum"
	Fracture                  Finding = "Fracture"
	LungLesion                Finding = "Lung Lesion"
	LungOpacity               Finding = "Lung Opacity"
	NoFinding                 Finding = "No Finding"
	PleuralEffusion           Finding = "Pleural Effusion"
	PleuralOther              Finding = "Pleural Other"
	Pneumonia                 Finding = "Pneumonia"
	Pneumothorax              Finding = "Pneumothorax"
	SupportDevices            Finding = "Support Devices"
)

// all is the canonical output order.
var all = []Finding{
	Atelectasis,
	Cardiomegaly,
	Consolidation,
	Edema,
	EnlargedCardiomediastinum,
	Fracture,
	LungLesion,
	LungOpacity,
	NoFinding,
	PleuralEffusion,
	PleuralOther,
	Pneumonia,
	Pneumothorax,
	SupportDevices,
}

// All returns the findings in canonical order.
// The returned slice is a copy and may be modified by the caller.
func All() []Finding {
	out := make([]Finding, len(all))
	copy(out, all)
	return out
}

// Names returns the finding names in canonical order.
func Names() []string {
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = string(f)
	}
	return names
}

// Valid reports whether f is one of the canonical findings.
func (f Finding) Valid() bool {
	for _, c := range all {
		if c == f {
			return true
		}
	}
	return false
}

// Label is the four-valued outcome for a single finding.
type Label string

const (
	Yes       Label = "Yes"
	No        Label = "No"
	Maybe     Label = "Maybe"
	Undefined Label = "Undefined"
)

// Labels returns the four labels in legend order.
func Labels() []Label {
	return []Label{Yes, No, Maybe, Undefined}
}

// Valid reports whether l is one of the four canonical labels.
func (l Label) Valid() bool {
	switch l {
	case Yes, No, Maybe, Undefined:
		return true
	}
	return false
}

// ParseLabel maps a model-provided value onto a canonical label.
// Matching ignores case and surrounding whitespace; any other value is rejected.
func ParseLabel(s string) (Label, error) {
	v := strings.TrimSpace(s)
	for _, l := range Labels() {
		if strings.EqualFold(v, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid label %q", s)
}

// LabelMap assigns exactly one label to every finding.
type LabelMap map[Finding]Label

// NewLabelMap returns a complete map with every finding set to Undefined.
func NewLabelMap() LabelMap {
	m := make(LabelMap, len(all))
	for _, f := range all {
		m[f] = Undefined
	}
	return m
}

// Complete reports whether m holds exactly the canonical findings, each with
// a valid label.
func (m LabelMap) Complete() bool {
	if len(m) != len(all) {
		return false
	}
	for _, f := range all {
		l, ok := m[f]
		if !ok || !l.Valid() {
			return false
		}
	}
	return true
}

// Normalize fills any missing finding with Undefined and drops keys that are
// not canonical findings or carry invalid labels.
func (m LabelMap) Normalize() LabelMap {
	out := NewLabelMap()
	for _, f := range all {
		if l, ok := m[f]; ok && l.Valid() {
			out[f] = l
		}
	}
	return out
}

// Count returns how many findings carry label l.
func (m LabelMap) Count(l Label) int {
	n := 0
	for _, v := range m {
		if v == l {
			n++
		}
	}
	return n
}

// MarshalJSON writes the findings in canonical order so output files are
// stable across runs.
func (m LabelMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range all {
		l, ok := m[f]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(string(f))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(string(l))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON rejects unknown findings and invalid labels.
func (m *LabelMap) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(LabelMap, len(raw))
	for k, v := range raw {
		f := Finding(k)
		if !f.Valid() {
			return fmt.Errorf("unknown finding %q", k)
		}
		l := Label(v)
		if !l.Valid() {
			return fmt.Errorf("invalid label %q for %s", v, k)
		}
		out[f] = l
	}
	*m = out
	return nil
}

// MentionMap records whether each finding is referenced by a report at all,
// positively or negatively.
type MentionMap map[Finding]bool

// Mentioned returns the mentioned findings in canonical order.
func (m MentionMap) Mentioned() []Finding {
	var out []Finding
	for _, f := range all {
		if m[f] {
			out = append(out, f)
		}
	}
	return out
}
