package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig defines rate limiting parameters for the public API.
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // sliding window size
}

// RateLimitResult is the outcome of a single rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter implements sliding-window rate limiting over a Redis
// sorted set per caller key. Enrollment is the hot path it protects:
// the booking form is internet-facing, the trigger endpoints are not.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Allow checks whether one more request fits the caller's window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Add(-r.config.Window)
	resetAt := now.Add(r.config.Window)

	redisKey := fmt.Sprintf("cadence:ratelimit:%s", key)

	pipe := r.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	current := int(countCmd.Val())
	if current >= r.config.Limit {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("current", current),
			zap.Int("limit", r.config.Limit),
		)
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	pipe2 := r.client.rdb.Pipeline()
	pipe2.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe2.Expire(ctx, redisKey, r.config.Window+time.Second)
	if _, err := pipe2.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis zadd failed: %w", err)
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: r.config.Limit - current - 1,
		ResetAt:   resetAt,
	}, nil
}
