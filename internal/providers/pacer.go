package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between consecutive label service calls.
// It wraps a token bucket with a burst of one, so the first call goes out
// immediately and every following call waits until the interval has elapsed.
type Pacer struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	interval time.Duration
	waited   time.Duration
	calls    int64
}

// PacerStatus reports current pacer state.
type PacerStatus struct {
	Interval    time.Duration `json:"interval"`
	Calls       int64         `json:"calls"`
	TotalWaited time.Duration `json:"total_waited"`
}

// NewPacer creates a pacer. A zero or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		limiter:  rate.NewLimiter(limitFor(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the next call may be made or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.calls++
	p.waited += time.Since(start)
	p.mu.Unlock()
	return nil
}

// SetInterval changes the minimum spacing. Safe to call while another
// goroutine is waiting.
func (p *Pacer) SetInterval(interval time.Duration) {
	p.mu.Lock()
	p.interval = interval
	p.mu.Unlock()
	p.limiter.SetLimit(limitFor(interval))
}

// Interval returns the current minimum spacing.
func (p *Pacer) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Status returns pacing statistics.
func (p *Pacer) Status() PacerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PacerStatus{
		Interval:    p.interval,
		Calls:       p.calls,
		TotalWaited: p.waited,
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Sleep waits for d or until ctx is done. Non-positive durations return
// immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
