package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Authenticator resolves a raw API key into an Identity by hash lookup.
type Authenticator struct {
	pool *pgxpool.Pool
}

// NewAuthenticator creates an Authenticator backed by the given pool.
func NewAuthenticator(pool *pgxpool.Pool) *Authenticator {
	return &Authenticator{pool: pool}
}

// ErrKeyNotFound indicates the hash had no matching active row.
var ErrKeyNotFound = errors.New("api key not found or inactive")

// Authenticate hashes rawKey and looks up the matching active api_keys row,
// joined to its role for the requests-per-minute cap.
func (a *Authenticator) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	hash := HashAPIKey(rawKey)

	const q = `
		SELECT k.id, k.key_prefix, k.active, k.quota_monthly, k.quota_used,
		       r.name, r.requests_per_minute
		FROM api_keys k
		JOIN roles r ON r.id = k.role_id
		WHERE k.key_hash = $1`

	var (
		id           uuid.UUID
		prefix       string
		active       bool
		quotaMonthly pgtype.Int4
		quotaUsed    int
		roleName     string
		rpm          int
	)

	err := a.pool.QueryRow(ctx, q, hash).Scan(&id, &prefix, &active, &quotaMonthly, &quotaUsed, &roleName, &rpm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if !active {
		return nil, ErrKeyNotFound
	}

	identity := &Identity{
		APIKeyID:          id,
		KeyPrefix:         prefix,
		Role:              roleName,
		RequestsPerMinute: rpm,
		Active:            active,
		QuotaUsed:         quotaUsed,
	}
	if quotaMonthly.Valid {
		v := int(quotaMonthly.Int32)
		identity.QuotaMonthly = &v
	}

	go a.touchLastUsed(id)

	return identity, nil
}

// touchLastUsed updates last_used_at off the request's critical path, mirroring
// the teacher's fire-and-forget update in its own API-key authenticator.
func (a *Authenticator) touchLastUsed(id uuid.UUID) {
	_, _ = a.pool.Exec(context.Background(), `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
}
