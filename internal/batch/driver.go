// Package batch runs the classification engine over a batch of records,
// isolating per-record failures and persisting each result as it completes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/radlabel/internal/classify"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

// Classifier labels one record.
type Classifier interface {
	Classify(ctx context.Context, rec records.Record) (findings.LabelMap, error)
}

// statser is implemented by classifiers that keep counters.
type statser interface {
	Stats() classify.Stats
}

// Config configures a Driver.
type Config struct {
	Classifier Classifier
	Writer     *records.Writer

	// RecordDelay is waited before each record is classified.
	RecordDelay time.Duration

	// RunID tags log lines; generated when empty.
	RunID string

	// OnRecord, when set, is called after every record with its outcome.
	OnRecord func(Outcome)

	Logger *slog.Logger
}

// Outcome describes what happened to one record.
type Outcome struct {
	Index     int
	PatientID string
	ReportID  string
	Written   bool
	Resumed   bool
	Kind      classify.Kind // set on failure
	Err       error
}

// Summary reports a finished (or interrupted) run.
type Summary struct {
	RunID    string                `json:"run_id"`
	Total    int                   `json:"total"`
	Written  int                   `json:"written"`
	Resumed  int                   `json:"resumed"`
	Failed   map[classify.Kind]int `json:"failed"`
	Engine   classify.Stats        `json:"engine"`
	Duration time.Duration         `json:"duration"`
}

// FailedTotal returns the number of failed records across kinds.
func (s Summary) FailedTotal() int {
	n := 0
	for _, c := range s.Failed {
		n += c
	}
	return n
}

// Driver processes records strictly in order, one at a time.
type Driver struct {
	classifier  Classifier
	writer      *records.Writer
	recordDelay time.Duration
	runID       string
	onRecord    func(Outcome)
	logger      *slog.Logger
}

// NewDriver creates a driver from cfg.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("writer is required")
	}
	if cfg.RecordDelay < 0 {
		return nil, fmt.Errorf("record delay must not be negative")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{
		classifier:  cfg.Classifier,
		writer:      cfg.Writer,
		recordDelay: cfg.RecordDelay,
		runID:       cfg.RunID,
		onRecord:    cfg.OnRecord,
		logger:      cfg.Logger.With("run_id", cfg.RunID),
	}, nil
}

// RunID returns the run identifier.
func (d *Driver) RunID() string {
	return d.runID
}

// Run labels every record. A failing record is logged and skipped; the run
// continues with the next one. Run returns early only when ctx is done
// (returning the summary so far with ctx.Err()) or when the output file can
// no longer be written.
func (d *Driver) Run(ctx context.Context, recs []records.Record) (Summary, error) {
	start := time.Now()
	sum := Summary{
		RunID:  d.runID,
		Total:  len(recs),
		Failed: make(map[classify.Kind]int),
	}
	finish := func(err error) (Summary, error) {
		if s, ok := d.classifier.(statser); ok {
			sum.Engine = s.Stats()
		}
		sum.Duration = time.Since(start)
		return sum, err
	}

	d.logger.Info("batch started", "records", len(recs), "output", d.writer.Path())

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("batch interrupted", "processed", sum.Written+sum.Resumed+sum.FailedTotal())
			return finish(err)
		}

		out, err := d.process(ctx, rec)
		switch {
		case out.Written:
			sum.Written++
		case out.Resumed:
			sum.Resumed++
		case out.Kind == classify.KindCanceled && ctx.Err() != nil:
			// The interrupted record is neither written nor failed.
		case out.Err != nil:
			sum.Failed[out.Kind]++
		}
		if d.onRecord != nil {
			d.onRecord(out)
		}
		if err != nil {
			return finish(err)
		}
	}

	d.logger.Info("batch complete",
		"total", sum.Total,
		"written", sum.Written,
		"resumed", sum.Resumed,
		"failed", sum.FailedTotal())
	return finish(nil)
}

// process handles one record. The returned error is non-nil only when the
// run must stop.
func (d *Driver) process(ctx context.Context, rec records.Record) (Outcome, error) {
	out := Outcome{Index: rec.Index, PatientID: rec.PatientID, ReportID: rec.ReportID}
	log := d.logger.With("patient_id", rec.PatientID, "report_id", rec.ReportID)

	if err := rec.Validate(); err != nil {
		out.Err, out.Kind = err, classify.KindInput
		log.Warn("skipping record", "index", rec.Index, "kind", out.Kind, "error", err)
		return out, nil
	}

	if d.writer.Has(rec.PatientID, rec.ReportID) {
		out.Resumed = true
		log.Debug("record already labeled, skipping")
		return out, nil
	}

	if err := providers.Sleep(ctx, d.recordDelay); err != nil {
		out.Err, out.Kind = err, classify.KindCanceled
		return out, err
	}

	labels, err := d.classifier.Classify(ctx, rec)
	if err != nil {
		out.Err = err
		if ctx.Err() != nil {
			out.Kind = classify.KindCanceled
			return out, ctx.Err()
		}
		out.Kind = classify.KindOf(err)
		log.Warn("skipping record",
			"kind", out.Kind,
			"error", err,
			"raw", classify.RawSnippet(err))
		return out, nil
	}

	if err := d.writer.Append(records.Result{
		PatientID:  rec.PatientID,
		ReportName: rec.ReportID,
		Labels:     labels,
	}); err != nil {
		out.Err, out.Kind = err, classify.KindUnknown
		log.Error("failed to persist result", "error", err)
		return out, fmt.Errorf("write output: %w", err)
	}

	out.Written = true
	log.Info("record labeled",
		"yes", labels.Count(findings.Yes),
		"no", labels.Count(findings.No),
		"maybe", labels.Count(findings.Maybe))
	return out, nil
}

// IsInterrupted reports whether err came from cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
