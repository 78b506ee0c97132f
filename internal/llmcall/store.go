package llmcall

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// QueryFilter specifies filters for listing recorded calls.
type QueryFilter struct {
	RunID     string
	PatientID string
	ReportID  string
	PromptKey string
	Provider  string
	Model     string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// Load reads every call from a JSON lines trace file.
func Load(path string) ([]Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes JSON lines from r. Blank lines are skipped.
func Read(r io.Reader) ([]Call, error) {
	var calls []Call
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var call Call
		if err := json.Unmarshal(data, &call); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		calls = append(calls, call)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return calls, nil
}

// List returns the calls matching filter, ordered by timestamp.
func List(calls []Call, filter QueryFilter) []Call {
	var out []Call
	for _, c := range calls {
		if matches(c, filter) {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func matches(c Call, f QueryFilter) bool {
	switch {
	case f.RunID != "" && c.RunID != f.RunID:
		return false
	case f.PatientID != "" && c.PatientID != f.PatientID:
		return false
	case f.ReportID != "" && c.ReportID != f.ReportID:
		return false
	case f.PromptKey != "" && c.PromptKey != f.PromptKey:
		return false
	case f.Provider != "" && c.Provider != f.Provider:
		return false
	case f.Model != "" && c.Model != f.Model:
		return false
	case f.Success != nil && c.Success != *f.Success:
		return false
	case f.After != nil && !c.Timestamp.After(*f.After):
		return false
	case f.Before != nil && !c.Timestamp.Before(*f.Before):
		return false
	}
	return true
}

// CountByPromptKey returns call counts grouped by prompt key.
func CountByPromptKey(calls []Call, filter QueryFilter) map[string]int {
	counts := make(map[string]int)
	for _, c := range List(calls, QueryFilter{
		RunID:     filter.RunID,
		PatientID: filter.PatientID,
		ReportID:  filter.ReportID,
		Provider:  filter.Provider,
		Success:   filter.Success,
	}) {
		counts[c.PromptKey]++
	}
	return counts
}
