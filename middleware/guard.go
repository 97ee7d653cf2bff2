package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionkit"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by RequireAccess.
func PrincipalFromContext(ctx context.Context) (*sessionkit.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*sessionkit.Principal)
	return p, ok
}

// RequireAccess rejects requests without a valid bearer access token. The
// response never says why; expired and forged tokens look the same.
func RequireAccess(engine *sessionkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := engine.VerifyAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
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
