package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	get := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return get, advance
}

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{QueriesPerMin: 5})
	now, _ := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl.now = now

	for i := range 5 {
		if err := rl.Allow(KindQuery, "s1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow(KindQuery, "s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{QueriesPerMin: 3})
	now, advance := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl.now = now

	for range 3 {
		_ = rl.Allow(KindQuery, "s1")
	}
	if err := rl.Allow(KindQuery, "s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// One token every 20s.
	advance(20 * time.Second)
	if err := rl.Allow(KindQuery, "s1"); err != nil {
		t.Fatalf("expected allow after refill, got %v", err)
	}
	if err := rl.Allow(KindQuery, "s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit after consuming the refilled token")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{QueriesPerMin: 1})
	now, _ := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl.now = now

	if err := rl.Allow(KindQuery, "a"); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := rl.Allow(KindQuery, "b"); err != nil {
		t.Fatalf("b should have its own bucket: %v", err)
	}
	if err := rl.Allow(KindQuery, "a"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("a should be limited")
	}
}

func TestRateLimiter_UnknownAndDisabledKinds(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{SessionsPerMin: -1})

	if err := rl.Allow("unknown_kind", "x"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
	for range 1000 {
		if err := rl.Allow(KindSession, "global"); err != nil {
			t.Fatalf("disabled kind limited: %v", err)
		}
	}
	if rl.Len() != 0 {
		t.Errorf("Len = %d, want 0 for disabled kinds", rl.Len())
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	defaults := rateLimitConfigDefaults()

	if rl.perMin[KindQuery] != defaults.QueriesPerMin {
		t.Errorf("queries = %d, want %d", rl.perMin[KindQuery], defaults.QueriesPerMin)
	}
	if rl.perMin[KindSession] != defaults.SessionsPerMin {
		t.Errorf("sessions = %d, want %d", rl.perMin[KindSession], defaults.SessionsPerMin)
	}
	if rl.MaxSessions() != 0 {
		t.Errorf("MaxSessions = %d, want 0", rl.MaxSessions())
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{QueriesPerMin: 1})
	now, advance := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl.now = now

	_ = rl.Allow(KindQuery, "old")
	advance(30 * time.Minute)
	_ = rl.Allow(KindQuery, "fresh")

	if removed := rl.Sweep(10 * time.Minute); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{QueriesPerMin: 50})
	now, _ := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl.now = now

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindQuery, "shared") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
