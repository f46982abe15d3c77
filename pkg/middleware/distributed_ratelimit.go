package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements a fixed-window counter in Redis so that
// every authzd replica shares the same limits
type DistributedRateLimiter struct {
	redis  redis.UniversalClient
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient redis.UniversalClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "tenantguard:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Config returns the limiter configuration
func (rl *DistributedRateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Allow increments the window counter for key
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	if count == 1 {
		// First hit opens the window
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return false, fmt.Errorf("redis rate limit expire: %w", err)
		}
	}

	return count <= int64(rl.config.RequestsPerWindow+rl.config.BurstSize), nil
}

// Reset clears the counter for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}
