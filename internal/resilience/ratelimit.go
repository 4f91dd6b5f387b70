package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Budget is one provider's rate ceiling pair: a sliding per-second rate and
// an absolute daily count that resets at local midnight.
type Budget struct {
	PerSecond float64
	Burst     int
	PerDay    int
}

// Limiter enforces per-provider Budgets. Acquire never blocks: it either
// grants a permit immediately or reports how long the caller must wait, so
// rate decisions stay centralized even when callers choose to decline.
type Limiter struct {
	mu        sync.Mutex
	providers map[string]*providerBudget
	loc       *time.Location
	now       func() time.Time
}

type providerBudget struct {
	bucket      *rate.Limiter
	perDay      int
	consumed    int
	windowStart time.Time
}

// NewLimiter creates a Limiter whose daily windows reset at midnight in loc.
func NewLimiter(loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.Local
	}
	return &Limiter{
		providers: make(map[string]*providerBudget),
		loc:       loc,
		now:       time.Now,
	}
}

// Register installs a budget for a provider. A provider without a budget is
// never limited.
func (l *Limiter) Register(provider string, b Budget) {
	if b.Burst < 1 {
		b.Burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers[provider] = &providerBudget{
		bucket:      rate.NewLimiter(rate.Limit(b.PerSecond), b.Burst),
		perDay:      b.PerDay,
		windowStart: midnight(l.now(), l.loc),
	}
}

// Acquire attempts to take one permit for the provider. A zero return means
// the permit was granted and the daily count consumed. A positive return is
// the minimum wait until a permit could be available; nothing was consumed.
// When the daily ceiling is exhausted the wait extends past the next reset
// boundary, never an indefinite in-place block.
func (l *Limiter) Acquire(provider string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	pb, ok := l.providers[provider]
	if !ok {
		return 0
	}

	now := l.now()
	if day := midnight(now, l.loc); !day.Equal(pb.windowStart) {
		pb.windowStart = day
		pb.consumed = 0
	}

	if pb.perDay > 0 && pb.consumed >= pb.perDay {
		return nextMidnight(now, l.loc).Sub(now)
	}

	res := pb.bucket.ReserveN(now, 1)
	if !res.OK() {
		// Burst smaller than the request; unreachable with Burst >= 1.
		return time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}

	pb.consumed++
	return 0
}

// Wait acquires a permit for the provider, sleeping through any reported
// delays. It honors ctx at every suspension point.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	for {
		delay := l.Acquire(provider)
		if delay == 0 {
			return nil
		}

		zap.L().Debug("rate limited, waiting",
			zap.String("provider", provider),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrapf(ctx.Err(), "rate limiter wait for %s", provider)
		case <-timer.C:
		}
	}
}

// Consumed reports how many permits the provider has used in the current
// daily window.
func (l *Limiter) Consumed(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pb, ok := l.providers[provider]; ok {
		return pb.consumed
	}
	return 0
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}
