package middleware

import (
	"net/http"
)

// RequireAdmin rejects requests whose Guard account is not an admin with
// 403. It must be mounted after Guard.
func RequireAdmin(onForbidden http.HandlerFunc) func(http.Handler) http.Handler {
	if onForbidden == nil {
		onForbidden = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Admin access required", http.StatusForbidden)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, ok := AccountFromContext(r.Context())
			if !ok || !acct.IsAdmin {
				onForbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
