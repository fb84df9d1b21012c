package auth

import (
	"log/slog"
	"net/http"

	"github.com/chranama/llm-server-sub001/internal/httpserver"
)

// Middleware authenticates every request via the X-API-Key header
// (spec.md §4.8 step 1): missing header → missing_api_key (401); header
// present but unresolvable → invalid_api_key (401).
func Middleware(authr *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				httpserver.RespondAppError(w, r, httpserver.ErrMissingAPIKey())
				return
			}

			identity, err := authr.Authenticate(r.Context(), rawKey)
			if err != nil {
				logger.Warn("API key authentication failed", "error", err)
				httpserver.RespondAppError(w, r, httpserver.ErrInvalidAPIKey())
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
