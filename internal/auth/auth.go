// Package auth authenticates gateway requests against the X-API-Key header
// (spec.md §4.8 step 1) and enforces role-based authorization for admin
// routes.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Well-known role names. Operators may add further roles as rows in the
// roles table; these two are seeded by the initial migration.
const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

// Identity is the resolved caller, stored in the request context after a
// successful API-key lookup.
type Identity struct {
	APIKeyID           uuid.UUID
	KeyPrefix          string
	Role               string
	RequestsPerMinute  int
	Active             bool
	QuotaMonthly       *int
	QuotaUsed          int
}

type contextKey string

const identityKey contextKey = "identity"

// NewContext returns a copy of ctx carrying identity.
func NewContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext extracts the Identity stored by Middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key. Only the
// hash is ever persisted; the raw key is shown to the operator once, at
// creation time.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
