// model/cache.go
package model

import "time"

// CacheConfig configures one CacheService instance.
type CacheConfig struct {
	Enabled             bool          `mapstructure:"enabled" json:"enabled"`
	DefaultTTL          time.Duration `mapstructure:"defaultTTL" json:"defaultTTL" validate:"gte=0"`
	MaxSize             int           `mapstructure:"maxSize" json:"maxSize" validate:"gte=0"`
	AutoRefreshInterval time.Duration `mapstructure:"autoRefreshInterval" json:"autoRefreshInterval" validate:"gte=0"`
	BackgroundRefresh   bool          `mapstructure:"backgroundRefresh" json:"backgroundRefresh"`
	KeyPrefix           string        `mapstructure:"keyPrefix" json:"keyPrefix"`
}

// DefaultCacheConfig returns the settings used when nothing is configured.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		DefaultTTL: 5 * time.Minute,
		MaxSize:    1000,
	}
}

// CacheEntryMetadata is the bookkeeping stored next to each cached value.
// A zero LastAccessed means the entry has never been read.
type CacheEntryMetadata struct {
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	AccessCount  int64     `json:"accessCount"`
	LastAccessed time.Time `json:"lastAccessed,omitempty"`
	Refreshing   bool      `json:"refreshing"`
}

// CacheEntry holds a cached value of type T.
type CacheEntry[T any] struct {
	Data     T                  `json:"data"`
	Metadata CacheEntryMetadata `json:"metadata"`
}

// KeyStrategy selects how GenerateKey joins key parts.
type KeyStrategy string

const (
	KeyStrategySimple       KeyStrategy = "simple"
	KeyStrategyHierarchical KeyStrategy = "hierarchical"
	KeyStrategyHashed       KeyStrategy = "hashed"
)

// KeyStrategies lists every accepted strategy.
var KeyStrategies = []KeyStrategy{KeyStrategySimple, KeyStrategyHierarchical, KeyStrategyHashed}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"maxSize"`
	HitRate   float64 `json:"hitRate"`
}

// RefreshFailure records one key that could not be refreshed.
type RefreshFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// RefreshResult summarises a RefreshAll or RefreshExpired run.
type RefreshResult struct {
	Success        bool             `json:"success"`
	RefreshedCount int              `json:"refreshedCount"`
	Errors         []RefreshFailure `json:"errors,omitempty"`
	Duration       time.Duration    `json:"duration"`
}
