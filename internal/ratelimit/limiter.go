package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one Check.
type Decision struct {
	// Limited is false when the route has no policy; nothing else is set then.
	Limited   bool
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded marks a request admitted because the backend failed.
	Degraded bool
}

// RetryAfter is the time left until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	left := d.ResetAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(left.Seconds())) * time.Second
}

type Limiter struct {
	table    Table
	backend  Backend
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	degraded atomic.Int64
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithTimeout bounds each backend call; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

func NewLimiter(table Table, backend Backend, logger *zap.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		table:   table,
		backend: backend,
		timeout: 250 * time.Millisecond,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request from clientID on route.
func (l *Limiter) Check(ctx context.Context, clientID, route string) Decision {
	policy, ok := l.table.Lookup(route)
	if !ok {
		return Decision{}
	}

	now := l.now()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	w, err := l.take(ctx, clientID+"|"+route, policy, now)
	if err != nil {
		total := l.degraded.Add(1)
		l.logger.Warn("Rate limit backend failed, admitting request",
			zap.String("route", route),
			zap.String("client", clientID),
			zap.Int64("degraded_total", total),
			zap.Error(err))
		return Decision{
			Limited:   true,
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetAt:   now.Add(policy.Window),
			Degraded:  true,
		}
	}

	remaining := policy.MaxRequests - w.Count
	if !w.Allowed || remaining < 0 {
		remaining = 0
	}
	return Decision{
		Limited:   true,
		Allowed:   w.Allowed,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}
}

// take runs the backend call so that a slow backend still honours ctx.
func (l *Limiter) take(ctx context.Context, key string, p Policy, now time.Time) (Window, error) {
	type result struct {
		w   Window
		err error
	}
	done := make(chan result, 1)
	go func() {
		w, err := l.backend.Take(ctx, key, p, now)
		done <- result{w, err}
	}()

	select {
	case r := <-done:
		return r.w, r.err
	case <-ctx.Done():
		return Window{}, ctx.Err()
	}
}

// DegradedCount is the number of requests admitted because the backend failed.
func (l *Limiter) DegradedCount() int64 {
	return l.degraded.Load()
}

func (l *Limiter) Table() Table {
	return l.table
}

// Sweep reclaims ended windows once.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.backend.Sweep(ctx, l.now())
}

// RunSweeper sweeps every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := l.Sweep(ctx)
			if err != nil {
				l.logger.Warn("Rate limit sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.logger.Debug("Rate limit windows reclaimed", zap.Int("count", n))
			}
		}
	}
}
