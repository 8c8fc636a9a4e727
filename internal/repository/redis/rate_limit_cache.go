package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"workflow-dashboard/internal/client"
	"workflow-dashboard/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// fixedWindowScript starts a window when the key is absent or has lost its
// expiry, increments while under the limit and never increments past it.
// Returns {allowed, count, pttl}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call('GET', key) or '0')
local ttl = redis.call('PTTL', key)

if count == 0 or ttl < 0 then
	redis.call('SET', key, 1, 'PX', window)
	return {1, 1, window}
end

if count < limit then
	count = redis.call('INCR', key)
	return {1, count, ttl}
end

return {0, count, ttl}
`)

// WindowResult is the state of one fixed window after a Take.
type WindowResult struct {
	Allowed bool
	Count   int
	ResetIn time.Duration
}

type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// Take counts one request against key within a window of the given length.
func (c *RateLimitCache) Take(ctx context.Context, key string, limit int, window time.Duration) (WindowResult, error) {
	result, err := c.client.RunScript(ctx, fixedWindowScript, []string{rateLimitPrefix + key},
		limit, window.Milliseconds())
	if err != nil {
		util.Error("Failed to execute fixed window rate limit",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return WindowResult{}, fmt.Errorf("failed to execute fixed window rate limit: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return WindowResult{}, fmt.Errorf("unexpected result format from fixed window script")
	}
	allowed, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	ttl, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return WindowResult{}, fmt.Errorf("unexpected result types from fixed window script")
	}

	util.Debug("Fixed window rate limit check",
		zap.String("key", key),
		zap.Bool("allowed", allowed == 1),
		zap.Int64("count", count),
		zap.Int("limit", limit))

	return WindowResult{
		Allowed: allowed == 1,
		Count:   int(count),
		ResetIn: time.Duration(ttl) * time.Millisecond,
	}, nil
}

// Sweep deletes rate-limit keys that have no expiry. Keys with a TTL are
// reclaimed by Redis itself.
func (c *RateLimitCache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.client.Scan(ctx, rateLimitPrefix+"*", 100)
	if err != nil {
		util.Error("Failed to scan keys for rate limit cleanup", zap.Error(err))
		return 0, fmt.Errorf("failed to scan rate limit keys: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		ttl, err := c.client.TTL(ctx, key)
		if err != nil {
			continue
		}
		// go-redis reports "no expiry" as a raw -1.
		if ttl == -1 {
			if err := c.client.Del(ctx, key); err == nil {
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		util.Info("Cleaned up orphaned rate limit keys", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

// Reset removes the window for key.
func (c *RateLimitCache) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, rateLimitPrefix+key); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}
