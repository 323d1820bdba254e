package middleware

import (
	"context"
	"net/http"
	"strings"

	tokengate "github.com/tokengate/tokengate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the verification result Guard attached to
// the request context.
func AuthResultFromContext(ctx context.Context) (*tokengate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*tokengate.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid access token. Verification is
// local (signature and claims only), so the guard adds no store latency to
// protected routes.
func Guard(engine *tokengate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
