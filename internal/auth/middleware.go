package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const (
	SchemeSecureToken = "SecureToken"
	SchemeBearer      = "Bearer"
)

var errMissingAuthorization = errors.New("missing Authorization header")

// Authenticator accepts either the shared service secret
// ("SecureToken <secret>") or, when a Verifier is configured, an OIDC bearer
// token.
type Authenticator struct {
	secureToken string
	verifier    *Verifier
}

func NewAuthenticator(secureToken string, verifier *Verifier) *Authenticator {
	return &Authenticator{secureToken: secureToken, verifier: verifier}
}

// Authenticate resolves the caller of r.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errMissingAuthorization
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || token == "" {
		return nil, fmt.Errorf("invalid Authorization header format")
	}

	switch {
	case strings.EqualFold(scheme, SchemeSecureToken):
		if a.secureToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.secureToken)) != 1 {
			return nil, fmt.Errorf("invalid secure token")
		}
		return &Principal{Sub: "service", Scheme: SchemeSecureToken}, nil
	case strings.EqualFold(scheme, SchemeBearer):
		if a.verifier == nil {
			return nil, fmt.Errorf("bearer tokens are not accepted")
		}
		p, _, err := a.verifier.VerifyToken(r.Context(), token)
		return p, err
	default:
		return nil, fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{Code: code, Message: message},
	})
}

// RequireAuth authenticates the request and injects the Principal and the
// raw credential into the context.
func RequireAuth(a *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.Authenticate(r)
			if err != nil {
				logger.Warn("auth failed", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			ctx := WithPrincipal(r.Context(), principal)
			ctx = WithCredential(ctx, r.Header.Get("Authorization"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope checks that the Principal has at least one of the required
// scopes. Callers using the shared service secret and admins bypass the check.
func RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			if p.IsService() || p.IsAdmin() || p.HasAnyScope(scopes...) {
				next.ServeHTTP(w, r)
				return
			}

			writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient scope")
		})
	}
}
