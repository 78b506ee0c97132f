package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/batch"
	"github.com/jackzampolin/radlabel/internal/classify"
	"github.com/jackzampolin/radlabel/internal/config"
	"github.com/jackzampolin/radlabel/internal/home"
	"github.com/jackzampolin/radlabel/internal/llmcall"
	"github.com/jackzampolin/radlabel/internal/prompts"
	"github.com/jackzampolin/radlabel/internal/prompts/labeling"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

// autoTrace selects a trace file under the home directory.
const autoTrace = "auto"

var errInterrupted = errors.New("interrupted")

var (
	labelInput       string
	labelOutput      string
	labelProtocol    string
	labelProvider    string
	labelPrompt      string
	labelResume      bool
	labelForce       bool
	labelTrace       string
	labelWatchConfig bool
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label a batch of reports",
	Long: `Label every report in an input JSON list and write the results.

The input is a JSON array of {"patient_id", "study_id", "content"} objects.
The output is a JSON array of {"patient_id", "report_name", "labels"} objects,
rewritten after every record so it is always a valid list. An output file
that already holds results is only replaced with --force.

Records that fail (label service error, unparseable response, malformed
input) are logged and skipped; the run continues with the next record.

Examples:
  radlabel label --input reports.json --output labels.json
  radlabel label -i reports.json -o labels.json --protocol single --prompt prompt.txt
  radlabel label -i reports.json -o labels.json --resume --trace
  radlabel label -i reports.json -o labels.json --force
  radlabel label -i reports.json -o labels.json --provider openai --watch-config`,
	RunE: runLabel,
}

func init() {
	f := labelCmd.Flags()
	f.StringVarP(&labelInput, "input", "i", "", "input JSON file of reports (required)")
	f.StringVarP(&labelOutput, "output", "o", "", "output JSON file of labels (required)")
	f.StringVar(&labelProtocol, "protocol", "", "prompting protocol: single or two-stage (default from config)")
	f.StringVar(&labelProvider, "provider", "", "label service provider name from config")
	f.StringVar(&labelPrompt, "prompt", "", "file overriding the single-stage instructions")
	f.BoolVar(&labelResume, "resume", false, "keep existing output and skip records already labeled")
	f.BoolVar(&labelForce, "force", false, "discard results already in the output file")
	f.StringVar(&labelTrace, "trace", "", "write one JSON line per label service call to this file")
	f.Lookup("trace").NoOptDefVal = autoTrace
	f.BoolVar(&labelWatchConfig, "watch-config", false, "apply delay changes from the config file while running")

	_ = labelCmd.MarkFlagRequired("input")
	_ = labelCmd.MarkFlagRequired("output")
	labelCmd.MarkFlagsMutuallyExclusive("resume", "force")
}

func runLabel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	h, mgr, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := applyLabelFlags(cmd, mgr); err != nil {
		return err
	}
	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}
	lc := cfg.Labeling

	protocol, err := classify.ParseProtocol(lc.Protocol)
	if err != nil {
		return err
	}

	recs, err := records.ReadFile(labelInput)
	if err != nil {
		return err
	}

	resolver, err := newResolver(lc, logger)
	if err != nil {
		return err
	}

	registry, err := providers.NewRegistryFromConfig(ctx, cfg.ToProviderRegistryConfig(), logger)
	if err != nil && !registry.HasLLM(lc.Provider) {
		return err
	}
	client, err := registry.GetLLM(lc.Provider)
	if err != nil {
		return fmt.Errorf("%w (is its API key set?)", err)
	}

	mode := records.ModeFresh
	switch {
	case labelResume:
		mode = records.ModeResume
	case labelForce:
		mode = records.ModeOverwrite
	}
	writer, err := records.OpenWriter(labelOutput, mode)
	if errors.Is(err, records.ErrOutputExists) {
		return fmt.Errorf("%w; use --resume to continue or --force to start over", err)
	}
	if err != nil {
		return err
	}

	runID := uuid.New().String()

	var recorder *llmcall.Recorder
	tracePath, err := resolveTracePath(h, runID)
	if err != nil {
		return err
	}
	if tracePath != "" {
		sink, closeTrace, err := openTrace(tracePath, logger)
		if err != nil {
			return err
		}
		defer closeTrace()
		recorder = llmcall.NewRecorder(sink, runID)
	}

	engine, err := classify.NewEngine(classify.Config{
		Client:       client,
		Protocol:     protocol,
		Resolver:     resolver,
		CallDelay:    lc.CallDelay,
		FindingDelay: lc.FindingDelay,
		MaxAttempts:  lc.MaxAttempts,
		RetryDelay:   lc.RetryDelay,
		Recorder:     recorder,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if labelWatchConfig {
		mgr.OnChange(func(c *config.Config) {
			engine.SetCallDelay(c.Labeling.CallDelay)
			engine.SetFindingDelay(c.Labeling.FindingDelay)
			logger.Info("applied delay changes",
				"call_delay", c.Labeling.CallDelay,
				"finding_delay", c.Labeling.FindingDelay)
		})
		mgr.WatchConfig()
	}

	driver, err := batch.NewDriver(batch.Config{
		Classifier:  engine,
		Writer:      writer,
		RecordDelay: lc.RecordDelay,
		RunID:       runID,
		OnRecord: func(o batch.Outcome) {
			if o.Err == nil {
				logger.Debug("record done",
					"index", o.Index, "patient_id", o.PatientID, "report_id", o.ReportID,
					"resumed", o.Resumed)
			}
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	sum, runErr := driver.Run(ctx, recs)

	report := newLabelReport(sum, lc, tracePath)
	report.Output = writer.Path()
	report.Interrupted = batch.IsInterrupted(runErr)
	if err := printer.Print(report); err != nil {
		return err
	}

	if runErr != nil {
		if report.Interrupted {
			return fmt.Errorf("%w after %d records; rerun with --resume to continue", errInterrupted, sum.Written+sum.Resumed+sum.FailedTotal())
		}
		return runErr
	}
	return nil
}

// applyLabelFlags lets explicit flags take precedence over file and env.
func applyLabelFlags(cmd *cobra.Command, mgr *config.Manager) error {
	overrides := map[string]string{
		"protocol": "labeling.protocol",
		"provider": "labeling.provider",
		"prompt":   "labeling.prompt_path",
	}
	for flag, key := range overrides {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		value, err := cmd.Flags().GetString(flag)
		if err != nil {
			return err
		}
		if err := mgr.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// newResolver registers the labeling prompts and installs file overrides.
func newResolver(lc config.LabelingCfg, logger *slog.Logger) (*prompts.Resolver, error) {
	r := prompts.NewResolver(logger)
	labeling.RegisterPrompts(r)

	overrides := []struct{ key, path string }{
		{labeling.SinglePromptKey, lc.PromptPath},
		{labeling.MentionPromptKey, lc.MentionPromptPath},
		{labeling.FindingPromptKey, lc.FindingPromptPath},
	}
	for _, o := range overrides {
		if err := r.LoadOverrideFile(o.key, o.path); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func resolveTracePath(h *home.Dir, runID string) (string, error) {
	switch labelTrace {
	case "":
		return "", nil
	case autoTrace:
		if err := h.EnsureExists(); err != nil {
			return "", err
		}
		return h.TracePath(runID), nil
	default:
		return labelTrace, nil
	}
}

// openTrace starts a sink appending to path. The returned func flushes and
// closes it.
func openTrace(path string, logger *slog.Logger) (*llmcall.Sink, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	sink := llmcall.NewSink(llmcall.SinkConfig{Writer: f, Logger: logger})
	// The sink outlives an interrupt so the final calls still reach the file.
	sink.Start(context.Background())

	return sink, func() {
		sink.Stop()
		if err := f.Close(); err != nil {
			logger.Warn("failed to close trace file", "path", path, "error", err)
		}
		logger.Info("trace written", "path", path, "calls", sink.Written())
	}, nil
}

// labelReport is the printed run summary.
type labelReport struct {
	RunID               string         `json:"run_id" yaml:"run_id"`
	Output              string         `json:"output" yaml:"output"`
	Protocol            string         `json:"protocol" yaml:"protocol"`
	Provider            string         `json:"provider" yaml:"provider"`
	Total               int            `json:"total" yaml:"total"`
	Written             int            `json:"written" yaml:"written"`
	Resumed             int            `json:"resumed" yaml:"resumed"`
	Failed              int            `json:"failed" yaml:"failed"`
	FailedByKind        map[string]int `json:"failed_by_kind,omitempty" yaml:"failed_by_kind,omitempty"`
	Calls               int64          `json:"calls" yaml:"calls"`
	Retries             int64          `json:"retries" yaml:"retries"`
	MaybeFallbacks      int64          `json:"maybe_fallbacks" yaml:"maybe_fallbacks"`
	StageAShortCircuits int64          `json:"stage_a_short_circuits" yaml:"stage_a_short_circuits"`
	Duration            string         `json:"duration" yaml:"duration"`
	Trace               string         `json:"trace,omitempty" yaml:"trace,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

func newLabelReport(sum batch.Summary, lc config.LabelingCfg, tracePath string) labelReport {
	r := labelReport{
		RunID:               sum.RunID,
		Protocol:            lc.Protocol,
		Provider:            lc.Provider,
		Total:               sum.Total,
		Written:             sum.Written,
		Resumed:             sum.Resumed,
		Failed:              sum.FailedTotal(),
		Calls:               sum.Engine.Calls,
		Retries:             sum.Engine.Retries,
		MaybeFallbacks:      sum.Engine.MaybeFallbacks,
		StageAShortCircuits: sum.Engine.StageAShortCircuits,
		Duration:            sum.Duration.Round(time.Millisecond).String(),
		Trace:               tracePath,
	}
	if len(sum.Failed) > 0 {
		r.FailedByKind = make(map[string]int, len(sum.Failed))
		for kind, n := range sum.Failed {
			r.FailedByKind[string(kind)] = n
		}
	}
	return r
}
