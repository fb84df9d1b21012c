// Package quota implements the per-API-key monthly quota ledger (C8): a
// transactional check-and-consume against the durable api_keys row. Quota
// is consumed on attempt, not success (spec.md §4.3's tested invariant).
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrExhausted indicates the key's quota_used has reached quota_monthly.
var ErrExhausted = errors.New("quota exhausted")

// Ledger enforces monthly consumption caps against the api_keys table.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger constructs a Ledger backed by pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// CheckAndConsume reads quota_monthly/quota_used and increments quota_used by
// one, all within a single transaction, per spec.md §4.3. A nil
// quota_monthly means unlimited and is never incremented-and-rejected.
func (l *Ledger) CheckAndConsume(ctx context.Context, apiKeyID uuid.UUID) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning quota transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var quotaMonthly *int
	var quotaUsed int
	err = tx.QueryRow(ctx, `SELECT quota_monthly, quota_used FROM api_keys WHERE id = $1 FOR UPDATE`, apiKeyID).
		Scan(&quotaMonthly, &quotaUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("api key %s not found: %w", apiKeyID, err)
		}
		return fmt.Errorf("reading quota cell: %w", err)
	}

	if quotaMonthly != nil && quotaUsed >= *quotaMonthly {
		return ErrExhausted
	}

	if _, err := tx.Exec(ctx, `UPDATE api_keys SET quota_used = quota_used + 1 WHERE id = $1`, apiKeyID); err != nil {
		return fmt.Errorf("incrementing quota_used: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing quota transaction: %w", err)
	}
	return nil
}
