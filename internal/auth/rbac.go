package auth

import (
	"net/http"

	"github.com/chranama/llm-server-sub001/internal/httpserver"
)

// roleLevel maps roles to a numeric privilege level for comparison. Roles
// beyond the two seeded by the initial migration default to level 0, so an
// operator-added role is treated as no more privileged than "standard"
// unless RequireRole names it explicitly.
var roleLevel = map[string]int{
	RoleStandard: 10,
	RoleAdmin:    20,
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondAppError(w, r, httpserver.ErrUnauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that rejects requests whose identity does not
// hold one of the listed roles. Roles are checked by exact match.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				httpserver.RespondAppError(w, r, httpserver.ErrUnauthorized("authentication required"))
				return
			}
			if _, ok := set[id.Role]; !ok {
				httpserver.RespondAppError(w, r, httpserver.ErrForbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinRole returns middleware that rejects requests whose identity has a
// lower privilege level than the given minimum role. This allows hierarchical
// checks: RequireMinRole(RoleStandard) permits admin and standard.
func RequireMinRole(minRole string) func(http.Handler) http.Handler {
	minLevel := roleLevel[minRole]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				httpserver.RespondAppError(w, r, httpserver.ErrUnauthorized("authentication required"))
				return
			}
			if roleLevel[id.Role] < minLevel {
				httpserver.RespondAppError(w, r, httpserver.ErrForbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
