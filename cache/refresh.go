// cache/refresh.go
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
)

// RefreshFunc recomputes the value of one key.
type RefreshFunc[T any] func(ctx context.Context) (T, error)

// refreshConcurrency bounds RefreshAll fan-out.
const refreshConcurrency = 8

// RefreshEntry recomputes key with fn and stores the result. Errors that are
// already a SembleError are returned unchanged; others are wrapped as
// CACHE_REFRESH. Concurrent calls for the same key share one invocation of fn. If the shared invocation fails
// a joiner returns the cached value when there is one and otherwise runs its
// own refresh.
func (c *CacheService[T]) RefreshEntry(ctx context.Context, key string, fn RefreshFunc[T], ttl time.Duration) (T, error) {
	var zero T

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, semble_errors.WrapCacheError(semble_errors.CodeCacheRefresh, key, semble_errors.ErrCacheClosed)
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	fullKey := c.normalize(key)

	v, led, err := c.coalescedRefresh(ctx, key, fullKey, fn, ttl)
	if err == nil || led {
		return v, err
	}

	if cached, ok := c.peek(fullKey); ok {
		logger.Debug("Shared refresh failed, returning cached value",
			zap.String("cache", c.name),
			zap.String("key", fullKey))
		return cached, nil
	}

	if ctx.Err() != nil {
		return zero, semble_errors.WrapCacheError(semble_errors.CodeCacheRefresh, key, ctx.Err())
	}
	v, _, err = c.coalescedRefresh(ctx, key, fullKey, fn, ttl)
	return v, err
}

// coalescedRefresh runs fn through the singleflight group. led reports
// whether this caller's fn was the one executed. The shared call is detached
// from the leader's cancellation so joiners are not failed by it.
func (c *CacheService[T]) coalescedRefresh(ctx context.Context, key, fullKey string, fn RefreshFunc[T], ttl time.Duration) (T, bool, error) {
	var zero T
	led := false
	shared := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan(fullKey, func() (any, error) {
		led = true
		return c.runRefresh(shared, key, fullKey, fn, ttl)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, led, res.Err
		}
		v, _ := res.Val.(T)
		return v, led, nil
	case <-ctx.Done():
		return zero, false, semble_errors.WrapCacheError(semble_errors.CodeCacheRefresh, key, ctx.Err())
	}
}

func (c *CacheService[T]) runRefresh(ctx context.Context, key, fullKey string, fn RefreshFunc[T], ttl time.Duration) (T, error) {
	var zero T

	c.setRefreshing(fullKey, true)
	defer c.setRefreshing(fullKey, false)

	v, err := fn(ctx)
	if err != nil {
		logger.Warn("Cache refresh failed",
			zap.String("cache", c.name),
			zap.String("key", fullKey),
			zap.Error(err))
		var se *semble_errors.SembleError
		if errors.As(err, &se) {
			return zero, err
		}
		return zero, semble_errors.WrapCacheError(semble_errors.CodeCacheRefresh, key, err)
	}

	if c.cfg.Enabled {
		c.mu.Lock()
		if !c.closed {
			c.storeLocked(fullKey, v, ttl)
		}
		c.mu.Unlock()
	}
	return v, nil
}

func (c *CacheService[T]) setRefreshing(fullKey string, refreshing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[fullKey]; ok {
		it.entry.Metadata.Refreshing = refreshing
	}
}

// peek returns a live value without counting an access.
func (c *CacheService[T]) peek(fullKey string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[fullKey]
	if !ok || c.expired(it.entry, c.clock.Now()) {
		return zero, false
	}
	return it.entry.Data, true
}

// RefreshAll refreshes every key in fns. A failing key is recorded and does
// not stop the others.
func (c *CacheService[T]) RefreshAll(ctx context.Context, fns map[string]RefreshFunc[T]) model.RefreshResult {
	return c.refreshKeys(ctx, fns, func(string) bool { return true })
}

// RefreshExpired refreshes only the keys in fns that are missing or expired.
func (c *CacheService[T]) RefreshExpired(ctx context.Context, fns map[string]RefreshFunc[T]) model.RefreshResult {
	return c.refreshKeys(ctx, fns, c.IsExpired)
}

func (c *CacheService[T]) refreshKeys(ctx context.Context, fns map[string]RefreshFunc[T], include func(string) bool) model.RefreshResult {
	start := c.clock.Now()

	keys := make([]string, 0, len(fns))
	for k := range fns {
		if include(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var (
		mu       sync.Mutex
		result   model.RefreshResult
		refreshG errgroup.Group
	)
	refreshG.SetLimit(refreshConcurrency)

	for _, key := range keys {
		fn := fns[key]
		refreshG.Go(func() error {
			_, err := c.RefreshEntry(ctx, key, fn, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, model.RefreshFailure{Key: key, Error: err.Error()})
				return nil
			}
			result.RefreshedCount++
			return nil
		})
	}
	_ = refreshG.Wait()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Key < result.Errors[j].Key })
	result.Success = len(result.Errors) == 0
	result.Duration = c.clock.Now().Sub(start)

	logger.Info("Cache refresh completed",
		zap.String("cache", c.name),
		zap.Int("refreshed", result.RefreshedCount),
		zap.Int("failed", len(result.Errors)),
		zap.Duration("duration", result.Duration))
	return result
}
