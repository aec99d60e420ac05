// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
	"github.com/kazuya8222/embld-revenue/internal/auth"
)

// Auth requires a Supabase access token in the Authorization header.
func Auth(v *auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}
			claims, err := v.Verify(strings.TrimSpace(ah[7:]))
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
				return
			}
			ctx := WithUser(r.Context(), UserCtx{UserID: claims.UserID(), Email: claims.Email, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
