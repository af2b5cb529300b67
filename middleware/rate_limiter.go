// middleware/rate_limiter.go

package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/semble/cache"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/ratelimit"
	"github.com/dev-mohitbeniwal/semble/util"
)

// LimiterFor returns the limiter of one client.
type LimiterFor func(ctx context.Context, clientKey string) (ratelimit.Limiter, error)

// RedisLimiters keeps one shared window per client in Redis.
func RedisLimiters(client redis.Cmdable, cfg model.RateLimitConfig) LimiterFor {
	return func(_ context.Context, clientKey string) (ratelimit.Limiter, error) {
		return ratelimit.NewRedisWindow(client, "inbound:"+clientKey, cfg, nil, nil), nil
	}
}

// MemoryLimiters keeps one in-process window per client. Idle windows are
// dropped after a full window without requests.
func MemoryLimiters(cfg model.RateLimitConfig) LimiterFor {
	ttl := cfg.Window
	if ttl <= 0 {
		ttl = time.Minute
	}
	windows := cache.New[*ratelimit.SlidingWindow](model.CacheConfig{
		Enabled:    true,
		DefaultTTL: ttl,
		MaxSize:    10000,
		KeyPrefix:  "inbound:",
	})

	return func(ctx context.Context, clientKey string) (ratelimit.Limiter, error) {
		w, ok, err := windows.Get(ctx, clientKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			w, err = windows.RefreshEntry(ctx, clientKey, func(context.Context) (*ratelimit.SlidingWindow, error) {
				return ratelimit.NewSlidingWindow(cfg, nil, nil), nil
			}, ttl)
			if err != nil {
				return nil, err
			}
			return w, nil
		}

		// Renew so an active client keeps its window.
		if err := windows.Set(ctx, clientKey, w, ttl); err != nil {
			return nil, err
		}
		return w, nil
	}
}

// RateLimiter bounds requests per client IP.
func RateLimiter(limiterFor LimiterFor, cfg model.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		limiter, err := limiterFor(c.Request.Context(), key)
		if err != nil {
			logger.Error("Rate limiting failed", zap.Error(err), zap.String("ip", key))
			util.RespondWithServiceError(c, err)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Duration", cfg.Window.String())

		if err := limiter.Acquire(c.Request.Context()); err != nil {
			logger.Warn("Rate limit exceeded",
				zap.String("ip", key),
				zap.Int("limit", cfg.MaxRequests),
				zap.Duration("per", cfg.Window))
			util.RespondWithServiceError(c, err)
			c.Abort()
			return
		}

		if state, err := limiter.State(c.Request.Context()); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
		}
		c.Next()
	}
}
