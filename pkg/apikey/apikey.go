// Package apikey implements the admin API for issuing and managing the
// gateway's API keys: creating a key hands back the raw value exactly once,
// listing and deactivating never expose it again.
package apikey

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateRequest is the JSON body for POST /v1/admin/keys.
type CreateRequest struct {
	Label        string `json:"label" validate:"required"`
	Role         string `json:"role" validate:"required"`
	QuotaMonthly *int   `json:"quota_monthly,omitempty"`
}

// Response is the JSON response for a single API key (without the raw key).
type Response struct {
	ID           uuid.UUID  `json:"id"`
	KeyPrefix    string     `json:"key_prefix"`
	Label        string     `json:"label"`
	Role         string     `json:"role"`
	Active       bool       `json:"active"`
	QuotaMonthly *int       `json:"quota_monthly,omitempty"`
	QuotaUsed    int        `json:"quota_used"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateResponse includes the raw key (only shown once at creation).
type CreateResponse struct {
	Response
	RawKey string `json:"raw_key"`
}

// Row represents a row returned from the api_keys table, joined to its role.
type Row struct {
	ID           uuid.UUID
	KeyPrefix    string
	Label        string
	Role         string
	Active       bool
	QuotaMonthly pgtype.Int4
	QuotaUsed    int
	LastUsedAt   pgtype.Timestamptz
	CreatedAt    time.Time
}

// ToResponse converts a Row to a Response DTO.
func (r *Row) ToResponse() Response {
	resp := Response{
		ID:        r.ID,
		KeyPrefix: r.KeyPrefix,
		Label:     r.Label,
		Role:      r.Role,
		Active:    r.Active,
		QuotaUsed: r.QuotaUsed,
		CreatedAt: r.CreatedAt,
	}
	if r.QuotaMonthly.Valid {
		v := int(r.QuotaMonthly.Int32)
		resp.QuotaMonthly = &v
	}
	if r.LastUsedAt.Valid {
		t := r.LastUsedAt.Time
		resp.LastUsedAt = &t
	}
	return resp
}
