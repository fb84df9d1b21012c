// Package concurrency implements the counting semaphore that bounds
// admission to heavy routes (C9): queue, never reject.
package concurrency

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chranama/llm-server-sub001/internal/telemetry"
)

// Gate bounds concurrent backend calls to a fixed capacity. Acquire blocks
// (honoring ctx cancellation) rather than rejecting, per spec.md §4.4.
type Gate struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewGate constructs a Gate with the given capacity (max_concurrent_requests).
func NewGate(capacity int, logger *slog.Logger) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), logger: logger}
}

// Release hands back a previously acquired permit.
type Release func()

// Acquire blocks until a permit is available or ctx is cancelled. Wait times
// over 5ms are logged with the request id and route, per spec.md §4.4.
func (g *Gate) Acquire(ctx context.Context, requestID, route string) (Release, error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if wait := time.Since(start); wait > 5*time.Millisecond {
		g.logger.Info("concurrency gate wait exceeded 5ms",
			"request_id", requestID,
			"route", route,
			"wait_ms", wait.Milliseconds(),
		)
	}
	telemetry.ConcurrencyWaitSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
	}, nil
}
