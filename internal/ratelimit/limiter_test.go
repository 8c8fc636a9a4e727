package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-dashboard/internal/bucketing"
	"workflow-dashboard/internal/client"
	"workflow-dashboard/internal/config"
	redisrepo "workflow-dashboard/internal/repository/redis"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type failingBackend struct{}

func (failingBackend) Take(context.Context, string, Policy, time.Time) (Window, error) {
	return Window{}, errors.New("connection refused")
}

func (failingBackend) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

type slowBackend struct{ delay time.Duration }

func (b slowBackend) Take(ctx context.Context, _ string, _ Policy, _ time.Time) (Window, error) {
	time.Sleep(b.delay)
	return Window{Allowed: false}, nil
}

func (slowBackend) Sweep(context.Context, time.Time) (int, error) { return 0, nil }

func testTable() Table {
	return Table{
		"/api/auth/login":       {MaxRequests: 5, Window: 15 * time.Minute},
		"/api/auth/verify-code": {MaxRequests: 3, Window: 5 * time.Minute},
	}
}

func newMemoryLimiter(clock *fakeClock) (*Limiter, *MemoryBackend) {
	backend := NewMemoryBackend(bucketing.NewBucketingManager(8))
	return NewLimiter(testTable(), backend, nil, WithClock(clock.Now)), backend
}

func TestTableFromConfigSkipsInvalidEntries(t *testing.T) {
	table := TableFromConfig(map[string]config.RoutePolicy{
		"/a": {MaxRequests: 2, Window: time.Minute},
		"/b": {MaxRequests: 0, Window: time.Minute},
		"/c": {MaxRequests: 2},
	})
	assert.Equal(t, []string{"/a"}, table.Routes())

	full := TableFromConfig(config.DefaultRoutes())
	p, ok := full.Lookup("/api/auth/verify-code")
	require.True(t, ok)
	assert.Equal(t, Policy{MaxRequests: 3, Window: 5 * time.Minute}, p)
}

func TestCheckUnlistedRouteIsNotLimited(t *testing.T) {
	l, backend := newMemoryLimiter(newFakeClock())

	for i := 0; i < 100; i++ {
		d := l.Check(context.Background(), "1.2.3.4", "/api/auth/validate")
		assert.False(t, d.Limited)
	}
	assert.Equal(t, 0, backend.Len())
}

func TestCheckFixedWindow(t *testing.T) {
	clock := newFakeClock()
	l, _ := newMemoryLimiter(clock)
	ctx := context.Background()
	start := clock.Now()

	for i := 1; i <= 5; i++ {
		d := l.Check(ctx, "1.2.3.4", "/api/auth/login")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, 5-i, d.Remaining)
		assert.Equal(t, start.Add(15*time.Minute), d.ResetAt)
		clock.Advance(time.Minute)
	}

	d := l.Check(ctx, "1.2.3.4", "/api/auth/login")
	assert.True(t, d.Limited)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 10*time.Minute, d.RetryAfter(clock.Now()))

	// Another client and another route have their own windows.
	assert.True(t, l.Check(ctx, "5.6.7.8", "/api/auth/login").Allowed)
	assert.True(t, l.Check(ctx, "1.2.3.4", "/api/auth/verify-code").Allowed)

	clock.Advance(10 * time.Minute)
	d = l.Check(ctx, "1.2.3.4", "/api/auth/login")
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, clock.Now().Add(15*time.Minute), d.ResetAt)
}

func TestCheckRejectionsDoNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	l, _ := newMemoryLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "c", "/api/auth/verify-code").Allowed)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Second)
		require.False(t, l.Check(ctx, "c", "/api/auth/verify-code").Allowed)
	}
	clock.Advance(2 * time.Minute)
	assert.True(t, l.Check(ctx, "c", "/api/auth/verify-code").Allowed)
}

func TestCheckConcurrentNeverExceedsLimit(t *testing.T) {
	l, _ := newMemoryLimiter(newFakeClock())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "same", "/api/auth/login").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestCheckFailsOpenOnBackendError(t *testing.T) {
	l := NewLimiter(testTable(), failingBackend{}, nil)

	for i := 0; i < 10; i++ {
		d := l.Check(context.Background(), "c", "/api/auth/login")
		assert.True(t, d.Limited)
		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
	}
	assert.Equal(t, int64(10), l.DegradedCount())
}

func TestCheckFailsOpenOnBackendTimeout(t *testing.T) {
	l := NewLimiter(testTable(), slowBackend{delay: 200 * time.Millisecond}, nil,
		WithTimeout(20*time.Millisecond))

	d := l.Check(context.Background(), "c", "/api/auth/login")
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Equal(t, int64(1), l.DegradedCount())
}

func TestSweepReclaimsEndedWindows(t *testing.T) {
	clock := newFakeClock()
	l, backend := newMemoryLimiter(clock)
	ctx := context.Background()

	l.Check(ctx, "a", "/api/auth/verify-code")
	l.Check(ctx, "b", "/api/auth/login")
	require.Equal(t, 2, backend.Len())

	clock.Advance(6 * time.Minute)
	n, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, backend.Len())
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	l, _ := newMemoryLimiter(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.RunSweeper(ctx, 5*time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRedisBackendWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc := &client.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	defer rc.Client.Close()

	backend := NewRedisBackend(redisrepo.NewRateLimitCache(rc))
	l := NewLimiter(testTable(), backend, nil, WithTimeout(time.Second))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "c", "/api/auth/verify-code").Allowed)
	}
	d := l.Check(ctx, "c", "/api/auth/verify-code")
	assert.False(t, d.Allowed)
	assert.False(t, d.Degraded)

	mr.FastForward(5*time.Minute + time.Millisecond)
	assert.True(t, l.Check(ctx, "c", "/api/auth/verify-code").Allowed)

	mr.Close()
	d = l.Check(ctx, "c", "/api/auth/verify-code")
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
}
