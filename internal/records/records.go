// Package records reads report batches and persists labeled results.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInput matches every *InputError.
var ErrInput = errors.New("invalid input record")

// InputError reports a record that cannot be labeled: a missing or blank
// identifier, or a missing content field.
type InputError struct {
	Index     int // position in the input batch
	PatientID string
	ReportID  string
	Field     string
	Reason    string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Reason)
}

// Is reports a match against ErrInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInput
}

// Input field names.
const (
	FieldPatientID = "patient_id"
	FieldStudyID   = "study_id"
	FieldContent   = "content"
)

// Record is one report to label. It is immutable once read.
type Record struct {
	Index     int
	PatientID string
	ReportID  string
	Text      string

	problem *InputError
}

// New builds a valid-looking record; Validate still checks it.
func New(patientID, reportID, text string) Record {
	return Record{PatientID: patientID, ReportID: reportID, Text: text}
}

// Validate reports whether the record carries everything needed to label it.
// Identifiers must be non-blank; present report text is labeled as is, even
// when empty.
func (r Record) Validate() error {
	if r.problem != nil {
		return r.problem
	}
	fail := func(field, reason string) error {
		return &InputError{Index: r.Index, PatientID: r.PatientID, ReportID: r.ReportID, Field: field, Reason: reason}
	}
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return fail(FieldPatientID, "is empty")
	case strings.TrimSpace(r.ReportID) == "":
		return fail(FieldStudyID, "is empty")
	}
	return nil
}

// ReadFile loads a JSON array of {"patient_id", "study_id", "content"}
// objects. A file that is not a JSON array is an error; individual entries
// with missing or malformed fields are returned as records whose Validate
// fails, so the batch can skip them one by one.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return Parse(data)
}

// Parse decodes a batch from data. See ReadFile.
func Parse(data []byte) ([]Record, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("input is not a JSON list: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for i, raw := range entries {
		out = append(out, parseEntry(i, raw))
	}
	return out, nil
}

func parseEntry(index int, raw json.RawMessage) Record {
	rec := Record{Index: index}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		rec.problem = &InputError{Index: index, Field: "record", Reason: "is not a JSON object"}
		return rec
	}

	var bad *InputError
	get := func(name string) string {
		v, ok := fields[name]
		if !ok {
			if bad == nil {
				bad = &InputError{Index: index, Field: name, Reason: "is missing"}
			}
			return ""
		}
		s, ok := scalar(v)
		if !ok && bad == nil {
			bad = &InputError{Index: index, Field: name, Reason: "must be a string or number"}
		}
		return s
	}

	rec.PatientID = get(FieldPatientID)
	rec.ReportID = get(FieldStudyID)
	rec.Text = get(FieldContent)
	if bad != nil {
		bad.PatientID = rec.PatientID
		bad.ReportID = rec.ReportID
		rec.problem = bad
	}
	return rec
}

// scalar renders identifiers given as JSON strings or numbers.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), false
	default:
		return "", false
	}
}
