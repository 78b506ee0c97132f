package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackzampolin/radlabel/internal/findings"
)

// Result is the labeled outcome for one record.
type Result struct {
	PatientID  string            `json:"patient_id"`
	ReportName string            `json:"report_name"`
	Labels     findings.LabelMap `json:"labels"`
}

// Key identifies a result for resumption.
func (r Result) Key() string {
	return key(r.PatientID, r.ReportName)
}

func key(patientID, reportID string) string {
	return patientID + "\x00" + reportID
}

// Writer owns the output collection. After every successful Append the file
// at path is a complete JSON list of all results so far.
type Writer struct {
	path string

	mu      sync.Mutex
	results []Result
	seen    map[string]bool
}

// ErrOutputExists is returned when a fresh run would discard existing results.
var ErrOutputExists = errors.New("output already holds results")

// OpenMode selects how OpenWriter treats an existing output file.
type OpenMode int

const (
	// ModeFresh starts an empty list and refuses to replace a file that
	// already holds results.
	ModeFresh OpenMode = iota
	// ModeResume keeps existing results so already labeled records are skipped.
	ModeResume
	// ModeOverwrite discards whatever the file holds.
	ModeOverwrite
)

// OpenWriter prepares the output file. With ModeResume, existing results at
// path are loaded and kept (a missing file starts empty; a corrupt one is an
// error). ModeFresh fails with ErrOutputExists when the file is not empty;
// ModeOverwrite resets it to an empty list.
func OpenWriter(path string, mode OpenMode) (*Writer, error) {
	w := &Writer{
		path: path,
		seen: make(map[string]bool),
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	switch mode {
	case ModeResume:
		existing, err := LoadResults(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		for _, r := range existing {
			w.results = append(w.results, r)
			w.seen[r.Key()] = true
		}
	case ModeFresh:
		existing, err := LoadResults(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%w: %s is not an empty list (%v)", ErrOutputExists, path, err)
		case len(existing) > 0:
			return nil, fmt.Errorf("%w: %s holds %d results", ErrOutputExists, path, len(existing))
		}
	case ModeOverwrite:
	default:
		return nil, fmt.Errorf("unknown open mode %d", mode)
	}

	if err := w.flush(); err != nil {
		return nil, err
	}
	return w, nil
}

// LoadResults reads a previously written output file.
func LoadResults(path string) ([]Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("output %s is not a valid result list: %w", path, err)
	}
	return results, nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Append adds r to the collection and rewrites the output file. On error the
// in-memory collection is left unchanged.
func (w *Writer) Append(r Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	r.Labels = r.Labels.Normalize()
	w.results = append(w.results, r)
	if err := w.flush(); err != nil {
		w.results = w.results[:len(w.results)-1]
		return err
	}
	w.seen[r.Key()] = true
	return nil
}

// Has reports whether a result for the record is already present.
func (w *Writer) Has(patientID, reportID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[key(patientID, reportID)]
}

// Len returns the number of results written.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.results)
}

// Results returns a copy of the collection in write order.
func (w *Writer) Results() []Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Result, len(w.results))
	copy(out, w.results)
	return out
}

// flush writes the whole collection to a temp file in the output directory
// and renames it over the output path. Callers hold mu.
func (w *Writer) flush() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	results := w.results
	if results == nil {
		results = []Result{}
	}
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set output permissions: %w", err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace output: %w", err)
	}
	return nil
}
