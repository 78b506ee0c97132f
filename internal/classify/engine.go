// Package classify turns one report into a complete label map by prompting a
// label service through a configurable protocol.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/radlabel/internal/extract"
	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/llmcall"
	"github.com/jackzampolin/radlabel/internal/prompts"
	"github.com/jackzampolin/radlabel/internal/prompts/labeling"
	"github.com/jackzampolin/radlabel/internal/providers"
	"github.com/jackzampolin/radlabel/internal/records"
)

// Defaults
const (
	DefaultCallDelay    = 1 * time.Second
	DefaultFindingDelay = 3 * time.Second
	DefaultRetryDelay   = 2 * time.Second
)

// Config configures an Engine.
type Config struct {
	// Client is the label service. Required.
	Client providers.LLMClient

	// Protocol selects single-stage or two-stage prompting (default: two-stage).
	Protocol Protocol

	// Model overrides the client's default model when set.
	Model string

	// Resolver supplies prompt text. Nil uses the embedded labeling prompts.
	Resolver *prompts.Resolver

	// Pacer spaces consecutive calls. Nil creates one from CallDelay.
	Pacer     *providers.Pacer
	CallDelay time.Duration

	// FindingDelay is waited before each Stage B call.
	FindingDelay time.Duration

	// MaxAttempts bounds transport attempts per call (default 1: no retry).
	MaxAttempts int
	RetryDelay  time.Duration

	// Recorder traces every call. Optional.
	Recorder *llmcall.Recorder

	Logger *slog.Logger
}

// Stats counts engine activity across records.
type Stats struct {
	Calls               int64 `json:"calls"`
	Retries             int64 `json:"retries"`
	MaybeFallbacks      int64 `json:"maybe_fallbacks"`
	StageAShortCircuits int64 `json:"stage_a_short_circuits"`
}

type counters struct {
	calls          atomic.Int64
	retries        atomic.Int64
	maybeFallbacks atomic.Int64
	shortCircuits  atomic.Int64
}

// Engine classifies records. It keeps no state between records other than
// pacing and counters.
type Engine struct {
	client      providers.LLMClient
	protocol    Protocol
	model       string
	resolver    *prompts.Resolver
	pacer       *providers.Pacer
	maxAttempts int
	retryDelay  time.Duration
	recorder    *llmcall.Recorder
	logger      *slog.Logger

	findingDelay atomic.Int64

	labelSchema   *extract.Validator
	mentionSchema *extract.Validator

	stats counters
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("label service client is required")
	}
	if cfg.Protocol == nil {
		cfg.Protocol = TwoStage()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = prompts.NewResolver(cfg.Logger)
		labeling.RegisterPrompts(cfg.Resolver)
	}
	if cfg.CallDelay < 0 || cfg.FindingDelay < 0 || cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("delays must not be negative")
	}
	if cfg.Pacer == nil {
		cfg.Pacer = providers.NewPacer(cfg.CallDelay)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	labelSchema, err := extract.NewValidator("label_map", LabelSchema())
	if err != nil {
		return nil, err
	}
	mentionSchema, err := extract.NewValidator("mention_map", MentionSchema())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		client:        cfg.Client,
		protocol:      cfg.Protocol,
		model:         cfg.Model,
		resolver:      cfg.Resolver,
		pacer:         cfg.Pacer,
		maxAttempts:   cfg.MaxAttempts,
		retryDelay:    cfg.RetryDelay,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger.With("protocol", cfg.Protocol.Name(), "provider", cfg.Client.Name()),
		labelSchema:   labelSchema,
		mentionSchema: mentionSchema,
	}
	e.findingDelay.Store(int64(cfg.FindingDelay))
	return e, nil
}

// Protocol returns the configured protocol.
func (e *Engine) Protocol() Protocol {
	return e.protocol
}

// Classify labels one record. The returned map always holds every finding.
// Any error means the record must be skipped.
func (e *Engine) Classify(ctx context.Context, rec records.Record) (findings.LabelMap, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels, err := e.protocol.Label(ctx, e, rec)
	if err != nil {
		return nil, err
	}
	return labels.Normalize(), nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Calls:               e.stats.calls.Load(),
		Retries:             e.stats.retries.Load(),
		MaybeFallbacks:      e.stats.maybeFallbacks.Load(),
		StageAShortCircuits: e.stats.shortCircuits.Load(),
	}
}

// SetCallDelay changes the minimum spacing between calls.
func (e *Engine) SetCallDelay(d time.Duration) {
	e.pacer.SetInterval(d)
}

// SetFindingDelay changes the wait before each Stage B call.
func (e *Engine) SetFindingDelay(d time.Duration) {
	e.findingDelay.Store(int64(d))
}

// FindingDelay returns the current wait before each Stage B call.
func (e *Engine) FindingDelay() time.Duration {
	return time.Duration(e.findingDelay.Load())
}

// prompt is one fully assembled label service call.
type prompt struct {
	key     string
	hash    string
	system  string
	user    string
	record  records.Record
	finding findings.Finding
}

// render resolves key and executes it against data.
func (e *Engine) render(key string, data any) (text, hash string, err error) {
	p, err := e.resolver.Resolve(key)
	if err != nil {
		return "", "", err
	}
	text, err = prompts.Render(key, p.Text, data)
	if err != nil {
		return "", "", err
	}
	return text, p.Hash, nil
}

// call sends p and returns the raw response text. Only transport errors are
// retried, up to maxAttempts attempts in total.
func (e *Engine) call(ctx context.Context, p prompt) (string, error) {
	var msgs []providers.Message
	if p.system != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: p.system})
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: p.user})

	var (
		content string
		attempt int
	)
	err := retry.Do(
		func() error {
			attempt++
			if attempt > 1 {
				e.stats.retries.Add(1)
			}
			if err := e.pacer.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			e.stats.calls.Add(1)
			req := &providers.ChatRequest{Messages: msgs, Model: e.model}
			result, err := e.client.Chat(ctx, req)
			e.record(p, attempt, result, err)
			if err != nil {
				return err
			}
			if result == nil {
				return &providers.TransportError{Provider: e.client.Name(), Err: errors.New("empty result")}
			}
			content = result.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxAttempts)),
		retry.Delay(e.retryDelay),
		retry.DelayType(e.retryDelayFor),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, providers.ErrTransport) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= e.maxAttempts {
				return
			}
			e.logger.Warn("retrying label service call",
				"patient_id", p.record.PatientID,
				"report_id", p.record.ReportID,
				"prompt_key", p.key,
				"attempt", n+2,
				"error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return content, nil
}

// retryDelayFor honours a server-provided Retry-After and otherwise uses the
// fixed retry delay.
func (e *Engine) retryDelayFor(n uint, err error, config *retry.Config) time.Duration {
	if terr, ok := providers.IsTransportError(err); ok && terr.RetryAfter > 0 {
		return terr.RetryAfter
	}
	return retry.FixedDelay(n, err, config)
}

func (e *Engine) record(p prompt, attempt int, result *providers.ChatResult, err error) {
	if e.recorder == nil {
		return
	}
	if result == nil {
		result = &providers.ChatResult{Provider: e.client.Name(), ModelUsed: e.model}
		if err != nil {
			result.ErrorMessage = err.Error()
		}
	}
	e.recorder.Record(result, llmcall.RecordOptions{
		PatientID:  p.record.PatientID,
		ReportID:   p.record.ReportID,
		Finding:    string(p.finding),
		PromptKey:  p.key,
		PromptHash: p.hash,
		Attempt:    attempt,
	})
}
