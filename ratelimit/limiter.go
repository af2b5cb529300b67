// ratelimit/limiter.go

// Package ratelimit bounds outbound Semble requests with a sliding window.
// A full window rejects immediately; nothing is queued.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

// Limiter admits or rejects one request at a time.
type Limiter interface {
	// Acquire records a request or fails with RATE_LIMIT_EXCEEDED.
	Acquire(ctx context.Context) error
	State(ctx context.Context) (model.RateLimitState, error)
	Reset(ctx context.Context) error
}

func exceeded(limit int, window time.Duration, retryAfter time.Duration) error {
	return semble_errors.NewAPIError(semble_errors.CodeRateLimitExceeded,
		fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window), nil).
		WithContext("retryAfter", retryAfter.String())
}

// throttle sleeps for the fixed per-request delay.
func throttle(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
