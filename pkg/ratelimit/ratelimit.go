// Package ratelimit implements the per-API-key fixed-window rate limiter
// (C7): an in-process sharded map, not a distributed store, per spec.md
// §4.2's explicit "no distributed coordination" non-goal.
package ratelimit

import (
	"sync"
	"time"
)

const shardCount = 32

type window struct {
	mu          sync.Mutex
	windowStart int64
	count       int
}

// Limiter holds per-key fixed 60-second windows across a fixed number of
// lock shards, keyed by a simple string hash so unrelated keys rarely
// contend on the same mutex.
type Limiter struct {
	shards [shardCount]map[string]*window
	mus    [shardCount]sync.Mutex
	now    func() time.Time
}

// NewLimiter constructs a Limiter using the wall clock.
func NewLimiter() *Limiter {
	return newLimiter(time.Now)
}

// newLimiterWithClock constructs a Limiter with an injectable clock, for
// deterministic window-boundary tests.
func newLimiterWithClock(now func() time.Time) *Limiter {
	return newLimiter(now)
}

func newLimiter(now func() time.Time) *Limiter {
	l := &Limiter{now: now}
	for i := range l.shards {
		l.shards[i] = make(map[string]*window)
	}
	return l
}

func shardIndex(key string) int {
	h := 2166136261
	for i := 0; i < len(key); i++ {
		h ^= int(key[i])
		h *= 16777619
	}
	if h < 0 {
		h = -h
	}
	return h % shardCount
}

// Allow checks-and-increments the counter for key against limit (requests
// per 60-second fixed window). Returns (allowed, retryAfterSeconds). Windows
// reset by replacement, not decrement, per spec.md §3 RateCounter.
func (l *Limiter) Allow(key string, limit int) (bool, int) {
	idx := shardIndex(key)
	l.mus[idx].Lock()
	w, ok := l.shards[idx][key]
	if !ok {
		w = &window{}
		l.shards[idx][key] = w
	}
	l.mus[idx].Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now().Unix()
	if w.windowStart == 0 || now-w.windowStart >= 60 {
		w.windowStart = now
		w.count = 0
	}

	if w.count >= limit {
		retryAfter := 60 - int(now-w.windowStart)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	w.count++
	return true, 0
}

// GC opportunistically drops windows whose last activity is more than two
// windows old (spec.md §4.2), bounding memory to active keys.
func (l *Limiter) GC() {
	cutoff := l.now().Unix() - 120
	for i := range l.shards {
		l.mus[i].Lock()
		for k, w := range l.shards[i] {
			w.mu.Lock()
			stale := w.windowStart < cutoff
			w.mu.Unlock()
			if stale {
				delete(l.shards[i], k)
			}
		}
		l.mus[i].Unlock()
	}
}
