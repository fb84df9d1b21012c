package apikey

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chranama/llm-server-sub001/internal/auth"
)

// Service encapsulates API key business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates an API key Service backed by the given global pool.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{
		store:  NewStore(pool),
		logger: logger,
	}
}

// List returns every API key.
func (s *Service) List(ctx context.Context) ([]Response, error) {
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Create generates a new API key, stores its hash, and returns the raw key once.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	raw, hash, prefix := generateAPIKey()

	var quota pgtype.Int4
	if req.QuotaMonthly != nil {
		quota = pgtype.Int4{Int32: int32(*req.QuotaMonthly), Valid: true}
	}

	row, err := s.store.Create(ctx, CreateParams{
		KeyHash:      hash,
		KeyPrefix:    prefix,
		Label:        req.Label,
		RoleName:     req.Role,
		QuotaMonthly: quota,
	})
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating api key: %w", err)
	}

	return CreateResponse{
		Response: row.ToResponse(),
		RawKey:   raw,
	}, nil
}

// Deactivate disables an API key so future requests presenting it fail
// authentication, per spec.md's quota/rate-limit revocation semantics.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivating api key: %w", err)
	}
	return nil
}

// generateAPIKey creates a random API key with prefix "ow_", its SHA-256 hash,
// and a short prefix for display.
func generateAPIKey() (raw, hash, prefix string) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	raw = fmt.Sprintf("ow_%x", b)
	hash = auth.HashAPIKey(raw)
	prefix = raw[:10]
	return
}
