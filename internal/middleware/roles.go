package middleware

import (
	"net/http"
	"strings"

	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
)

// RequireAdmin lets through only the caller whose email matches adminEmail.
// An empty adminEmail disables the admin routes entirely.
func RequireAdmin(adminEmail string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := FromCtx(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", nil)
				return
			}
			if adminEmail == "" || !strings.EqualFold(u.Email, adminEmail) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin access required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
