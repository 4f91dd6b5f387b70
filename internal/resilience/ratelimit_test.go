package resilience

import (
	"context"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAcquire_UnregisteredProviderNeverLimited(t *testing.T) {
	l := NewLimiter(time.UTC)
	for i := 0; i < 100; i++ {
		if d := l.Acquire("unknown"); d != 0 {
			t.Fatalf("unregistered provider should always grant, got wait %v", d)
		}
	}
}

func TestAcquire_PerSecondCeiling(t *testing.T) {
	l := NewLimiter(time.UTC)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = fixedClock(now)
	l.Register("api", Budget{PerSecond: 1, Burst: 1, PerDay: 100})

	if d := l.Acquire("api"); d != 0 {
		t.Fatalf("first acquire should grant instantly, got wait %v", d)
	}
	d := l.Acquire("api")
	if d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("second immediate acquire should wait ~1s, got %v", d)
	}
	// The declined acquire must not consume the daily budget.
	if got := l.Consumed("api"); got != 1 {
		t.Errorf("expected 1 consumed, got %d", got)
	}
}

func TestAcquire_DailyCeilingWaitsUntilReset(t *testing.T) {
	l := NewLimiter(time.UTC)
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	l.now = fixedClock(now)
	l.Register("api", Budget{PerSecond: 100, Burst: 100, PerDay: 3})

	for i := 0; i < 3; i++ {
		if d := l.Acquire("api"); d != 0 {
			t.Fatalf("acquire %d should grant, got wait %v", i, d)
		}
	}

	d := l.Acquire("api")
	if d != 6*time.Hour {
		t.Errorf("exhausted daily budget should wait until midnight (6h), got %v", d)
	}
}

func TestAcquire_DailyWindowResetsAtMidnight(t *testing.T) {
	l := NewLimiter(time.UTC)
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	l.now = fixedClock(day1)
	l.Register("api", Budget{PerSecond: 100, Burst: 100, PerDay: 2})

	l.Acquire("api")
	l.Acquire("api")
	if d := l.Acquire("api"); d == 0 {
		t.Fatal("expected daily ceiling hit")
	}

	// Cross the day boundary.
	l.now = fixedClock(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))
	if d := l.Acquire("api"); d != 0 {
		t.Errorf("new day should reset the budget, got wait %v", d)
	}
	if got := l.Consumed("api"); got != 1 {
		t.Errorf("expected fresh window with 1 consumed, got %d", got)
	}
}

func TestWait_GrantsEventually(t *testing.T) {
	l := NewLimiter(time.UTC)
	l.Register("api", Budget{PerSecond: 50, Burst: 1, PerDay: 100})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "api"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Two waits of ~20ms each after the initial grant.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected waits to accumulate, elapsed %v", elapsed)
	}
}

func TestWait_HonorsContext(t *testing.T) {
	l := NewLimiter(time.UTC)
	l.Register("api", Budget{PerSecond: 0.001, Burst: 1, PerDay: 100})

	// Drain the single burst token.
	if d := l.Acquire("api"); d != 0 {
		t.Fatal("first acquire should grant")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "api"); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestMidnightHelpers(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	at := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) // 2026-03-02 00:30 JST
	m := midnight(at, loc)
	if m.Hour() != 0 || m.Day() != 2 {
		t.Errorf("unexpected midnight %v", m)
	}
	n := nextMidnight(at, loc)
	if n.Day() != 3 || n.Hour() != 0 {
		t.Errorf("unexpected next midnight %v", n)
	}
}
