// cache/sweep.go
package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
)

// StartAutoRefresh starts the periodic expiry sweep. It is a no-op when the
// sweep is already running or AutoRefreshInterval is not positive. The sweep
// only deletes expired entries; callers refresh values explicitly.
func (c *CacheService[T]) StartAutoRefresh() {
	if c.cfg.AutoRefreshInterval <= 0 {
		return
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.sweepStop != nil {
		return
	}

	c.sweepStop = make(chan struct{})
	c.sweepDone = make(chan struct{})
	go c.sweepLoop(c.sweepStop, c.sweepDone)

	logger.Debug("Cache sweep started",
		zap.String("cache", c.name),
		zap.Duration("interval", c.cfg.AutoRefreshInterval))
}

// StopAutoRefresh stops the sweep and waits for it to exit.
func (c *CacheService[T]) StopAutoRefresh() {
	c.sweepMu.Lock()
	stop, done := c.sweepStop, c.sweepDone
	c.sweepStop, c.sweepDone = nil, nil
	c.sweepMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *CacheService[T]) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-c.clock.After(c.cfg.AutoRefreshInterval):
			c.safeSweep()
		}
	}
}

func (c *CacheService[T]) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Cache sweep failed",
				zap.String("cache", c.name),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	if removed := c.SweepExpired(); removed > 0 {
		logger.Debug("Cache sweep removed expired entries",
			zap.String("cache", c.name),
			zap.Int("removed", removed))
	}
}

// SweepExpired deletes every expired entry and returns how many were removed.
func (c *CacheService[T]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		key := e.Value.(string)
		if c.expired(c.items[key].entry, now) {
			c.removeLocked(key)
			removed++
		}
		e = next
	}
	return removed
}

// Shutdown stops the sweep, waits for in-flight refreshes and clears the
// cache. Later operations fail with ErrCacheClosed.
func (c *CacheService[T]) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.StopAutoRefresh()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for cache refreshes: %w", ctx.Err())
	}

	c.Clear()
	logger.Info("Cache shut down", zap.String("cache", c.name))
	return nil
}
