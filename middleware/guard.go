package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/accounts"
)

// Authenticator resolves an access token to its active account.
// *couponauth.Engine satisfies it.
type Authenticator interface {
	Identity(ctx context.Context, accessToken string) (*accounts.Account, error)
}

// ErrorWriter renders a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type accountContextKey struct{}

// AccountFromContext returns the account stored by Guard.
func AccountFromContext(ctx context.Context) (*accounts.Account, bool) {
	a, ok := ctx.Value(accountContextKey{}).(*accounts.Account)
	return a, ok && a != nil
}

// WithAccount stores a in ctx the way Guard does.
func WithAccount(ctx context.Context, a *accounts.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, a)
}

// Guard requires a valid bearer access token. The resolved account is
// available through AccountFromContext. A nil onError writes a bare 401.
func Guard(auth Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainUnauthorized
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				onError(w, r, couponauth.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, &couponauth.AuthError{})
				return
			}

			acct, err := auth.Identity(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acct)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func plainUnauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
