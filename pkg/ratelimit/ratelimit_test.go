package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AllowsUpToLimitThenRejects(t *testing.T) {
	l := NewLimiter()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("k1", 3)
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, retryAfter := l.Allow("k1", 3)
	if ok {
		t.Fatal("4th request should be rejected")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want 1..60", retryAfter)
	}
}

func TestLimiter_ResetsAfterWindowBoundary(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return current }
	l := newLimiterWithClock(clock)

	ok, _ := l.Allow("k2", 1)
	if !ok {
		t.Fatal("first request should be allowed")
	}
	ok, _ = l.Allow("k2", 1)
	if ok {
		t.Fatal("second request in same window should be rejected")
	}

	current = current.Add(61 * time.Second)
	ok, _ = l.Allow("k2", 1)
	if !ok {
		t.Fatal("request after window boundary should be allowed")
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	l := NewLimiter()
	ok1, _ := l.Allow("a", 1)
	ok2, _ := l.Allow("b", 1)
	if !ok1 || !ok2 {
		t.Fatal("independent keys should not share a window")
	}
}

func TestLimiter_GCDropsStaleWindows(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return current }
	l := newLimiterWithClock(clock)

	l.Allow("old", 5)
	current = current.Add(200 * time.Second)
	l.GC()

	// After GC, the stale entry is gone so a fresh window starts — allowed again.
	ok, _ := l.Allow("old", 1)
	if !ok {
		t.Fatal("expected a fresh window after GC removed the stale entry")
	}
}
