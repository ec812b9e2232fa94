package access

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Middleware wires warehouse authorization into HTTP routes. It expects the
// principal to be placed on the request context by the auth middleware.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAdmin admits superusers only.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		if !IsAdmin(p) {
			httpx.RespondError(w, actionDenied(p, 0, PermNone))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyPermission admits callers holding perm on at least one warehouse.
func (m Middleware) RequireAnyPermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if err := m.Service.EnsureAnyWarehousePermission(r.Context(), p, perm); err != nil {
				if m.Logger != nil {
					m.Logger.Debug("warehouse permission denied",
						slog.Int64("user_id", p.GetID()),
						slog.String("permission", perm.String()),
						slog.Any("error", err),
					)
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
