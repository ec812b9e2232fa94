package auth

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RequireUser rejects requests without a valid bearer token and stores the
// resolved user as the access principal.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey"`)
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		user, err := s.Resolve(r.Context(), strings.TrimSpace(token))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.ContextWithPrincipal(r.Context(), user)))
	})
}
