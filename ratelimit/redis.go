// ratelimit/redis.go
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
)

// slidingWindowScript prunes, checks and records in one round trip so
// processes sharing the key cannot overshoot the limit. Scores are unix
// milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, count}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// RedisWindow is a sliding window stored in a Redis sorted set, for several
// processes sharing one Semble API quota.
type RedisWindow struct {
	client  redis.Cmdable
	key     string
	cfg     model.RateLimitConfig
	clock   clock.Clock
	metrics *metrics.Metrics
}

var _ Limiter = &RedisWindow{}

func NewRedisWindow(client redis.Cmdable, name string, cfg model.RateLimitConfig, clk clock.Clock, m *metrics.Metrics) *RedisWindow {
	if clk == nil {
		clk = clock.WallClock
	}
	return &RedisWindow{
		client:  client,
		key:     fmt.Sprintf("ratelimit:%s", name),
		cfg:     cfg,
		clock:   clk,
		metrics: m,
	}
}

func (w *RedisWindow) Acquire(ctx context.Context) error {
	if w.cfg.MaxRequests > 0 {
		now := w.clock.Now().UnixMilli()
		res, err := slidingWindowScript.Run(ctx, w.client, []string{w.key},
			now, w.cfg.Window.Milliseconds(), w.cfg.MaxRequests, uuid.NewString()).Int64Slice()
		if err != nil {
			return fmt.Errorf("failed to execute rate limit script: %w", err)
		}

		allowed, count := res[0] == 1, res[1]
		logger.Debug("Rate limit check",
			zap.String("key", w.key),
			zap.Int64("count", count),
			zap.Int("limit", w.cfg.MaxRequests),
			zap.Bool("allowed", allowed))

		if !allowed {
			w.metrics.RateLimitRejected()
			return exceeded(w.cfg.MaxRequests, w.cfg.Window, w.retryAfter(ctx, now))
		}
	}
	return throttle(ctx, w.clock, w.cfg.Delay)
}

func (w *RedisWindow) retryAfter(ctx context.Context, now int64) time.Duration {
	oldest, err := w.client.ZRangeWithScores(ctx, w.key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return w.cfg.Window
	}
	return time.Duration(int64(oldest[0].Score)+w.cfg.Window.Milliseconds()-now) * time.Millisecond
}

func (w *RedisWindow) State(ctx context.Context) (model.RateLimitState, error) {
	now := w.clock.Now().UnixMilli()
	members, err := w.client.ZRangeByScoreWithScores(ctx, w.key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now-w.cfg.Window.Milliseconds(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return model.RateLimitState{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	state := model.RateLimitState{
		Requests:  make([]time.Time, 0, len(members)),
		Remaining: int(math.Max(0, float64(w.cfg.MaxRequests-len(members)))),
		ResetTime: time.UnixMilli(now).Add(w.cfg.Window),
	}
	for _, m := range members {
		state.Requests = append(state.Requests, time.UnixMilli(int64(m.Score)))
	}
	if len(state.Requests) > 0 {
		state.ResetTime = state.Requests[0].Add(w.cfg.Window)
	}
	return state, nil
}

func (w *RedisWindow) Reset(ctx context.Context) error {
	if err := w.client.Del(ctx, w.key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}
	return nil
}
