// cache/cache_service.go

// Package cache provides the in-memory TTL cache shared by schema discovery
// and permission checks. Entries expire lazily on read, the least recently
// used entry is evicted when the cache is full, and concurrent refreshes of
// one key are coalesced into a single call.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
)

// Option customises a CacheService.
type Option func(*options)

type options struct {
	clock   clock.Clock
	metrics *metrics.Metrics
	name    string
}

// WithClock sets the time source. Tests pass a testclock.Clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics records hits, misses, evictions and size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithName sets the metrics label. It defaults to the key prefix.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

type item[T any] struct {
	entry   *model.CacheEntry[T]
	element *list.Element
}

// CacheService is a TTL cache with LRU eviction for values of type T.
type CacheService[T any] struct {
	cfg     model.CacheConfig
	clock   clock.Clock
	metrics *metrics.Metrics
	name    string

	mu     sync.Mutex
	items  map[string]*item[T]
	order  *list.List // insertion order, used to break eviction ties
	closed bool

	refreshGroup singleflight.Group
	inflight     sync.WaitGroup

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a CacheService. When cfg.BackgroundRefresh is set and
// cfg.AutoRefreshInterval is positive the expiry sweep starts immediately.
func New[T any](cfg model.CacheConfig, opts ...Option) *CacheService[T] {
	o := options{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = strings.TrimSuffix(cfg.KeyPrefix, ":")
		if o.name == "" {
			o.name = "default"
		}
	}

	c := &CacheService[T]{
		cfg:     cfg,
		clock:   o.clock,
		metrics: o.metrics,
		name:    o.name,
		items:   make(map[string]*item[T]),
		order:   list.New(),
	}

	if cfg.BackgroundRefresh && cfg.AutoRefreshInterval > 0 {
		c.StartAutoRefresh()
	}
	return c
}

// Config returns the configuration the cache was built with.
func (c *CacheService[T]) Config() model.CacheConfig {
	return c.cfg
}

func (c *CacheService[T]) normalize(key string) string {
	return c.cfg.KeyPrefix + key
}

func (c *CacheService[T]) expired(e *model.CacheEntry[T], now time.Time) bool {
	return now.After(e.Metadata.ExpiresAt)
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
func (c *CacheService[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if !c.cfg.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return semble_errors.WrapCacheError(semble_errors.CodeCacheWrite, key, semble_errors.ErrCacheClosed)
	}
	c.storeLocked(c.normalize(key), value, ttl)
	return nil
}

// storeLocked writes an entry. Must be called with mu held.
func (c *CacheService[T]) storeLocked(fullKey string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	now := c.clock.Now()

	existing, exists := c.items[fullKey]
	if !exists && c.cfg.MaxSize > 0 && len(c.items) >= c.cfg.MaxSize {
		c.evictLeastRecentlyUsedLocked()
	}

	entry := &model.CacheEntry[T]{
		Data: value,
		Metadata: model.CacheEntryMetadata{
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		},
	}

	if exists {
		existing.entry = entry
	} else {
		c.items[fullKey] = &item[T]{
			entry:   entry,
			element: c.order.PushBack(fullKey),
		}
	}

	c.metrics.SetCacheSize(c.name, len(c.items))
	logger.Debug("Cache entry stored",
		zap.String("cache", c.name),
		zap.String("key", fullKey),
		zap.Duration("ttl", ttl))
}

// Get returns the value stored under key. Expired entries are removed and
// reported as a miss.
func (c *CacheService[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if !c.cfg.Enabled {
		c.misses.Add(1)
		c.metrics.CacheMiss(c.name)
		return zero, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return zero, false, semble_errors.WrapCacheError(semble_errors.CodeCacheRead, key, semble_errors.ErrCacheClosed)
	}

	fullKey := c.normalize(key)
	it, ok := c.items[fullKey]
	now := c.clock.Now()
	if !ok || c.expired(it.entry, now) {
		if ok {
			c.removeLocked(fullKey)
		}
		c.misses.Add(1)
		c.metrics.CacheMiss(c.name)
		return zero, false, nil
	}

	it.entry.Metadata.AccessCount++
	it.entry.Metadata.LastAccessed = now
	c.hits.Add(1)
	c.metrics.CacheHit(c.name)
	return it.entry.Data, true, nil
}

// Has reports whether a live entry exists. It expires entries like Get but
// leaves access metadata untouched.
func (c *CacheService[T]) Has(key string) bool {
	if !c.cfg.Enabled {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fullKey := c.normalize(key)
	it, ok := c.items[fullKey]
	if !ok {
		return false
	}
	if c.expired(it.entry, c.clock.Now()) {
		c.removeLocked(fullKey)
		return false
	}
	return true
}

// IsExpired reports whether key is missing or past its expiry. It does not
// delete anything.
func (c *CacheService[T]) IsExpired(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[c.normalize(key)]
	return !ok || c.expired(it.entry, c.clock.Now())
}

// EntryMetadata returns the bookkeeping of key without counting an access.
func (c *CacheService[T]) EntryMetadata(key string) (model.CacheEntryMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[c.normalize(key)]
	if !ok {
		return model.CacheEntryMetadata{}, false
	}
	return it.entry.Metadata, true
}

// Delete removes key and reports whether it was present.
func (c *CacheService[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fullKey := c.normalize(key)
	if _, ok := c.items[fullKey]; !ok {
		return false
	}
	c.removeLocked(fullKey)
	return true
}

// Clear drops every entry.
func (c *CacheService[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*item[T])
	c.order.Init()
	c.metrics.SetCacheSize(c.name, 0)
}

// Keys returns the caller-facing keys in insertion order, expired or not.
func (c *CacheService[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, strings.TrimPrefix(e.Value.(string), c.cfg.KeyPrefix))
	}
	return keys
}

// Size returns the number of stored entries, including expired ones not yet
// swept.
func (c *CacheService[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the cache counters.
func (c *CacheService[T]) Stats() model.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := model.CacheStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Size:      c.Size(),
		MaxSize:   c.cfg.MaxSize,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// removeLocked must be called with mu held.
func (c *CacheService[T]) removeLocked(fullKey string) {
	it, ok := c.items[fullKey]
	if !ok {
		return
	}
	c.order.Remove(it.element)
	delete(c.items, fullKey)
	c.metrics.SetCacheSize(c.name, len(c.items))
}

// evictLeastRecentlyUsedLocked removes the entry with the oldest
// LastAccessed, falling back to CreatedAt for entries never read. Among equal
// timestamps the entry inserted last is evicted. Must be called with mu held.
func (c *CacheService[T]) evictLeastRecentlyUsedLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		found      bool
	)
	for e := c.order.Front(); e != nil; e = e.Next() {
		key := e.Value.(string)
		meta := c.items[key].entry.Metadata
		t := meta.LastAccessed
		if t.IsZero() {
			t = meta.CreatedAt
		}
		if !found || !t.After(oldestTime) {
			oldestKey, oldestTime, found = key, t, true
		}
	}
	if !found {
		return
	}

	c.removeLocked(oldestKey)
	c.evictions.Add(1)
	c.metrics.CacheEviction(c.name)
	logger.Debug("Evicted least recently used cache entry",
		zap.String("cache", c.name),
		zap.String("key", oldestKey))
}
