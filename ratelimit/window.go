// ratelimit/window.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
)

// SlidingWindow is an in-process limiter keeping the timestamps of the
// requests made during the trailing window.
type SlidingWindow struct {
	cfg     model.RateLimitConfig
	clock   clock.Clock
	metrics *metrics.Metrics

	mu        sync.Mutex
	requests  []time.Time
	remaining int
	resetTime time.Time
}

var _ Limiter = &SlidingWindow{}

// NewSlidingWindow creates a limiter. A MaxRequests of zero disables the
// window check but keeps the per-request delay.
func NewSlidingWindow(cfg model.RateLimitConfig, clk clock.Clock, m *metrics.Metrics) *SlidingWindow {
	if clk == nil {
		clk = clock.WallClock
	}
	return &SlidingWindow{
		cfg:       cfg,
		clock:     clk,
		metrics:   m,
		remaining: cfg.MaxRequests,
		resetTime: clk.Now().Add(cfg.Window),
	}
}

func (w *SlidingWindow) Acquire(ctx context.Context) error {
	if w.cfg.MaxRequests > 0 {
		if err := w.record(); err != nil {
			return err
		}
	}
	return throttle(ctx, w.clock, w.cfg.Delay)
}

func (w *SlidingWindow) record() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	if !now.Before(w.resetTime) {
		w.requests = w.requests[:0]
		w.resetTime = now.Add(w.cfg.Window)
	}
	w.pruneLocked(now)

	if len(w.requests) >= w.cfg.MaxRequests {
		retryAfter := w.requests[0].Add(w.cfg.Window).Sub(now)
		w.remaining = 0
		w.metrics.RateLimitRejected()
		logger.Warn("Rate limit exceeded",
			zap.Int("limit", w.cfg.MaxRequests),
			zap.Duration("window", w.cfg.Window),
			zap.Duration("retryAfter", retryAfter))
		return exceeded(w.cfg.MaxRequests, w.cfg.Window, retryAfter)
	}

	w.requests = append(w.requests, now)
	w.remaining = w.cfg.MaxRequests - len(w.requests)
	return nil
}

// pruneLocked drops timestamps that left the window. Must be called with mu
// held.
func (w *SlidingWindow) pruneLocked(now time.Time) {
	i := 0
	for i < len(w.requests) && now.Sub(w.requests[i]) >= w.cfg.Window {
		i++
	}
	if i > 0 {
		w.requests = append(w.requests[:0], w.requests[i:]...)
	}
}

func (w *SlidingWindow) State(context.Context) (model.RateLimitState, error) {
	return w.Snapshot(), nil
}

// Snapshot returns a copy of the window state.
func (w *SlidingWindow) Snapshot() model.RateLimitState {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.clock.Now())
	requests := make([]time.Time, len(w.requests))
	copy(requests, w.requests)
	return model.RateLimitState{
		Requests:  requests,
		Remaining: w.remaining,
		ResetTime: w.resetTime,
	}
}

func (w *SlidingWindow) Reset(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.requests = nil
	w.remaining = w.cfg.MaxRequests
	w.resetTime = w.clock.Now().Add(w.cfg.Window)
	return nil
}
