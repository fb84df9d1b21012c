package apikey

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rowColumns = `k.id, k.key_prefix, k.label, r.name, k.active, k.quota_monthly, k.quota_used, k.last_used_at, k.created_at`

const rowFrom = `FROM api_keys k JOIN roles r ON r.id = k.role_id`

// Store provides database operations for API keys and their roles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an API key Store backed by the given global connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ErrRoleNotFound indicates the requested role name has no matching row.
var ErrRoleNotFound = errors.New("role not found")

// CreateParams holds parameters for creating an API key.
type CreateParams struct {
	KeyHash      string
	KeyPrefix    string
	Label        string
	RoleName     string
	QuotaMonthly pgtype.Int4
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.KeyPrefix, &r.Label, &r.Role, &r.Active, &r.QuotaMonthly, &r.QuotaUsed, &r.LastUsedAt, &r.CreatedAt)
	return r, err
}

// List returns every API key, newest first.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` ` + rowFrom + ` ORDER BY k.created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return items, nil
}

// roleIDByName resolves a role name to its primary key.
func (s *Store) roleIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrRoleNotFound
	}
	return id, err
}

// Create inserts a new API key and returns the created row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	roleID, err := s.roleIDByName(ctx, p.RoleName)
	if err != nil {
		return Row{}, err
	}

	query := `INSERT INTO api_keys (key_hash, key_prefix, label, role_id, quota_monthly)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, p.KeyHash, p.KeyPrefix, p.Label, roleID, p.QuotaMonthly).Scan(&id); err != nil {
		return Row{}, fmt.Errorf("inserting api key: %w", err)
	}

	row := s.pool.QueryRow(ctx, `SELECT `+rowColumns+` `+rowFrom+` WHERE k.id = $1`, id)
	return scanRow(row)
}

// Deactivate flips an API key's active flag to false so it can no longer
// authenticate, without losing its audit trail or inference history.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
