package chi

import (
	"context"
	"net/http"
	"strings"
)

// exemptPaths are routes that ignore the Authorization header (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

type tokenKey struct{}

// TokenFromContext returns the bearer token placed by BearerTokenMiddleware.
// An empty token means the caller is anonymous.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// BearerTokenMiddleware extracts the Bearer token into the request context.
// A missing header passes through as anonymous; a malformed one is rejected.
// Token validity is decided by the search engine's principal resolver.
func BearerTokenMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			token := strings.TrimSpace(auth[len(bearerPrefix):])
			if token == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "empty bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
