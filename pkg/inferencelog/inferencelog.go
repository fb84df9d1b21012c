// Package inferencelog appends one structured record per terminal request
// outcome (C10), asynchronously and in batches, adapted from the teacher's
// audit-log writer shape (channel + ticker + batch flush).
package inferencelog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one terminal outcome, written exactly once per request
// (spec.md §3 InferenceLog).
type Entry struct {
	RequestID        string
	APIKeyID         uuid.UUID
	Route            string
	ModelID          string
	PromptTokens     *int
	CompletionTokens *int
	LatencyMS        int
	StatusCode       int
	ErrorCode        string
	Cached           bool
}

const (
	bufferSize    = 1024
	flushInterval = 2 * time.Second
	batchSize     = 100
)

// Writer batches Entry writes off the request's critical path.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	done    chan struct{}
}

// NewWriter constructs a Writer. Call Start to begin the flush loop and
// Close to drain and stop it.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}
}

// Log enqueues an entry for asynchronous persistence. If the buffer is full,
// the entry is written synchronously rather than dropped, since every
// terminal outcome must produce exactly one row (spec.md §8).
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.flush([]Entry{entry})
	}
}

// Start runs the batch-flush loop until ctx is cancelled.
func (w *Writer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		batch := make([]Entry, 0, batchSize)
		for {
			select {
			case e := <-w.entries:
				batch = append(batch, e)
				if len(batch) >= batchSize {
					w.flush(batch)
					batch = batch[:0]
				}
			case <-ticker.C:
				if len(batch) > 0 {
					w.flush(batch)
					batch = batch[:0]
				}
			case <-ctx.Done():
				w.drain(batch)
				close(w.done)
				return
			}
		}
	}()
}

func (w *Writer) drain(batch []Entry) {
	for {
		select {
		case e := <-w.entries:
			batch = append(batch, e)
		default:
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

// Close waits for the flush loop to drain and exit (call after cancelling
// the context passed to Start).
func (w *Writer) Close() {
	<-w.done
}

func (w *Writer) flush(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, e := range batch {
		_, err := w.pool.Exec(ctx, `
			INSERT INTO inference_logs
				(request_id, api_key_id, route, model_id, prompt_tokens, completion_tokens,
				 latency_ms, status_code, error_code, cached)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.RequestID, e.APIKeyID, e.Route, nullIfEmpty(e.ModelID), e.PromptTokens, e.CompletionTokens,
			e.LatencyMS, e.StatusCode, nullIfEmpty(e.ErrorCode), e.Cached,
		)
		if err != nil {
			w.logger.Error("writing inference log", "error", err, "request_id", e.RequestID)
		}
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
