package llmcall

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// SinkConfig configures the trace sink.
type SinkConfig struct {
	Writer        io.Writer
	BatchSize     int           // Flush after N calls (default: 50)
	FlushInterval time.Duration // Or after duration (default: 2s)
	QueueSize     int           // Buffer size (default: 256)
	Logger        *slog.Logger
}

// Sink batches call records and writes them as JSON lines.
type Sink struct {
	w      *bufio.Writer
	logger *slog.Logger

	// Configuration
	batchSize     int
	flushInterval time.Duration

	// Internal state
	queue   chan *Call
	batch   []*Call
	batchMu sync.Mutex
	flushCh chan chan struct{}
	written int64

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a new trace sink.
func NewSink(cfg SinkConfig) *Sink {
	// Apply defaults
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sink{
		w:             bufio.NewWriter(cfg.Writer),
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *Call, cfg.QueueSize),
		batch:         make([]*Call, 0, cfg.BatchSize),
		flushCh:       make(chan chan struct{}),
	}
}

// Start begins processing call records.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.runBatcher()
}

// Stop gracefully shuts down the sink, flushing remaining records.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		// Close queue to stop accepting new records and signal shutdown
		close(s.queue)

		// Wait for batcher to finish (it will flush remaining)
		s.wg.Wait()

		s.cancel()
		s.logger.Debug("trace sink stopped", "written", s.Written())
	})
}

// Send queues a call record (fire-and-forget).
func (s *Sink) Send(call *Call) {
	if call == nil {
		return
	}

	// Use recover to handle send on closed channel
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sink closed, dropping call record", "call_id", call.ID)
		}
	}()

	select {
	case s.queue <- call:
	case <-s.ctx.Done():
		s.logger.Warn("sink closed, dropping call record", "call_id", call.ID)
	}
}

// Flush writes every queued record and waits until they reach the writer.
func (s *Sink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-s.ctx.Done():
		return fmt.Errorf("sink closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of records written so far.
func (s *Sink) Written() int64 {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.written
}

// runBatcher collects records and flushes on size/time triggers.
func (s *Sink) runBatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				// Queue closed, flush remaining and exit
				s.flushBatch()
				return
			}
			s.addToBatch(call)

		case <-ticker.C:
			s.flushBatch()

		case done := <-s.flushCh:
			s.drainQueue()
			s.flushBatch()
			close(done)
		}
	}
}

// drainQueue moves already queued records into the batch.
func (s *Sink) drainQueue() {
	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				return
			}
			s.addToBatch(call)
		default:
			return
		}
	}
}

// addToBatch adds a record to the current batch, flushing if full.
func (s *Sink) addToBatch(call *Call) {
	s.batchMu.Lock()
	s.batch = append(s.batch, call)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flushBatch()
	}
}

// flushBatch writes the current batch of records.
func (s *Sink) flushBatch() {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if len(s.batch) == 0 {
		return
	}

	enc := json.NewEncoder(s.w)
	enc.SetEscapeHTML(false)
	for _, call := range s.batch {
		if err := enc.Encode(call); err != nil {
			s.logger.Error("failed to write call record", "call_id", call.ID, "error", err)
			continue
		}
		s.written++
	}
	if err := s.w.Flush(); err != nil {
		s.logger.Error("failed to flush trace", "error", err)
	}
	s.logger.Debug("flushed call records", "count", len(s.batch))
	s.batch = make([]*Call, 0, s.batchSize)
}
