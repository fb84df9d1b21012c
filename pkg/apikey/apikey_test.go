package apikey

import (
	"strings"
	"testing"

	"github.com/chranama/llm-server-sub001/internal/auth"
)

func TestGenerateAPIKey(t *testing.T) {
	raw, hash, prefix := generateAPIKey()

	if !strings.HasPrefix(raw, "ow_") {
		t.Errorf("raw key %q missing ow_ prefix", raw)
	}
	if prefix != raw[:10] {
		t.Errorf("prefix = %q, want first 10 chars of raw (%q)", prefix, raw[:10])
	}
	if hash != auth.HashAPIKey(raw) {
		t.Errorf("hash does not match auth.HashAPIKey(raw)")
	}

	raw2, _, _ := generateAPIKey()
	if raw == raw2 {
		t.Fatal("two generated keys collided")
	}
}

func TestRowToResponse(t *testing.T) {
	r := Row{KeyPrefix: "ow_abcd1234", Label: "ci bot", Role: "standard", Active: true, QuotaUsed: 3}
	resp := r.ToResponse()

	if resp.KeyPrefix != "ow_abcd1234" || resp.Label != "ci bot" || resp.Role != "standard" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.QuotaMonthly != nil {
		t.Errorf("QuotaMonthly = %v, want nil for an invalid pgtype.Int4", resp.QuotaMonthly)
	}
	if resp.LastUsedAt != nil {
		t.Errorf("LastUsedAt = %v, want nil for an invalid pgtype.Timestamptz", resp.LastUsedAt)
	}
}
