package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"workflow-dashboard/internal/bucketing"
	redisrepo "workflow-dashboard/internal/repository/redis"
)

var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Window is the state of one (client, route) window after a Take.
type Window struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Backend counts requests in fixed windows.
type Backend interface {
	// Take counts one request for key. It starts a new window when none exists
	// or the current one has ended, increments while Count < MaxRequests, and
	// otherwise rejects without incrementing.
	Take(ctx context.Context, key string, p Policy, now time.Time) (Window, error)
	// Sweep reclaims ended windows and reports how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// MemoryBackend keeps windows in process, spread over mutex-guarded shards.
// Counts are per instance; use RedisBackend when running more than one.
type MemoryBackend struct {
	buckets *bucketing.BucketingManager
	shards  []*memoryShard
}

func NewMemoryBackend(buckets *bucketing.BucketingManager) *MemoryBackend {
	shards := make([]*memoryShard, buckets.Buckets())
	for i := range shards {
		shards[i] = &memoryShard{windows: make(map[string]*memoryWindow)}
	}
	return &MemoryBackend{buckets: buckets, shards: shards}
}

func (b *MemoryBackend) Take(_ context.Context, key string, p Policy, now time.Time) (Window, error) {
	shard := b.shards[b.buckets.Bucket(key)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{count: 1, resetAt: now.Add(p.Window)}
		shard.windows[key] = w
		return Window{Allowed: true, Count: 1, ResetAt: w.resetAt}, nil
	}

	if w.count < p.MaxRequests {
		w.count++
		return Window{Allowed: true, Count: w.count, ResetAt: w.resetAt}, nil
	}

	return Window{Allowed: false, Count: w.count, ResetAt: w.resetAt}, nil
}

func (b *MemoryBackend) Sweep(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, shard := range b.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			if !now.Before(w.resetAt) {
				delete(shard.windows, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

// Len reports the number of tracked windows.
func (b *MemoryBackend) Len() int {
	n := 0
	for _, shard := range b.shards {
		shard.mu.Lock()
		n += len(shard.windows)
		shard.mu.Unlock()
	}
	return n
}

// RedisBackend shares windows between instances through Redis. Window
// boundaries follow the Redis server clock.
type RedisBackend struct {
	cache *redisrepo.RateLimitCache
}

func NewRedisBackend(cache *redisrepo.RateLimitCache) *RedisBackend {
	return &RedisBackend{cache: cache}
}

func (b *RedisBackend) Take(ctx context.Context, key string, p Policy, now time.Time) (Window, error) {
	res, err := b.cache.Take(ctx, key, p.MaxRequests, p.Window)
	if err != nil {
		return Window{}, errors.Join(ErrBackendUnavailable, err)
	}
	return Window{Allowed: res.Allowed, Count: res.Count, ResetAt: now.Add(res.ResetIn)}, nil
}

func (b *RedisBackend) Sweep(ctx context.Context, _ time.Time) (int, error) {
	n, err := b.cache.Sweep(ctx)
	if err != nil {
		return 0, errors.Join(ErrBackendUnavailable, err)
	}
	return n, nil
}
