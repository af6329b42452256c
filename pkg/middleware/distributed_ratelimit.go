package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// windowScript counts a hit and opens the window on the first one. Running
// both steps in one script means a counter can never be left without a TTL.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// DistributedRateLimiter counts requests per fixed window in Redis so that
// every replica shares one budget per key.
type DistributedRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed limiter. Keys are stored
// under prefix, "assessor:ratelimit" when empty.
func NewDistributedRateLimiter(client *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "assessor:ratelimit"
	}
	return &DistributedRateLimiter{client: client, config: *config, prefix: prefix}
}

// Config implements Limiter
func (rl *DistributedRateLimiter) Config() RateLimitConfig {
	return rl.config
}

func (rl *DistributedRateLimiter) budget() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

func (rl *DistributedRateLimiter) redisKey(key string) string {
	return rl.prefix + ":" + key
}

// Allow implements Limiter. The burst allowance is added to the window
// budget. On a Redis error the request is allowed and the error returned.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := windowScript.Run(ctx, rl.client, []string{rl.redisKey(key)}, rl.config.WindowDuration.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("failed to count request for %s: %w", key, err)
	}
	return count <= int64(rl.budget()), nil
}

// Remaining returns how many requests key may still make in this window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.client.Get(ctx, rl.redisKey(key)).Int()
	switch {
	case err == redis.Nil:
		return rl.budget(), nil
	case err != nil:
		return 0, err
	case count >= rl.budget():
		return 0, nil
	}
	return rl.budget() - count, nil
}

// TTL returns the time until key's window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.client.TTL(ctx, rl.redisKey(key)).Result()
}

// Reset clears key's window
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.redisKey(key)).Err()
}
