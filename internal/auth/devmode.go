package auth

import (
	"log/slog"
	"net/http"
)

// DevModeMiddleware lets every request through as a synthetic service
// principal. Any Authorization header sent is still forwarded downstream.
// Use only when AUTH_ENABLED=false (development).
func DevModeMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger.Warn("DEV MODE: Authentication disabled, all requests are accepted")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &Principal{
				Sub:    "dev-user",
				Scheme: SchemeSecureToken,
				Scopes: map[string]bool{ScopeReindex: true},
				Roles:  map[string]bool{RoleAdmin: true},
				Issuer: "dev",
			}
			ctx := WithPrincipal(r.Context(), p)
			ctx = WithCredential(ctx, r.Header.Get("Authorization"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
