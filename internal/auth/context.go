package auth

import (
	"context"
)

type ctxKey struct{}

type credentialKey struct{}

const (
	// ScopeReindex allows triggering reindex jobs.
	ScopeReindex = "nightcrawler:reindex"
	// RoleAdmin bypasses scope checks.
	RoleAdmin = "nightcrawler_admin"
)

// Principal represents an authenticated caller.
type Principal struct {
	Sub    string          `json:"sub"`
	Scheme string          `json:"scheme"` // SecureToken or Bearer
	Scopes map[string]bool `json:"scopes"`
	Roles  map[string]bool `json:"roles"`
	Issuer string          `json:"issuer"`
	Email  string          `json:"email"`
}

// WithPrincipal stores a Principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom extracts the Principal from the context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok
}

// HasScope returns true if the principal has the given scope.
func (p *Principal) HasScope(s string) bool {
	return p.Scopes[s]
}

// HasAnyScope returns true if the principal has at least one of the scopes.
func (p *Principal) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if p.Scopes[s] {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Roles[RoleAdmin]
}

// IsService reports whether the caller authenticated with the shared
// service secret.
func (p *Principal) IsService() bool {
	return p.Scheme == SchemeSecureToken
}

// WithCredential stores the raw inbound Authorization value so outbound
// calls made on behalf of the request can forward it.
func WithCredential(ctx context.Context, authorization string) context.Context {
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialKey{}, authorization)
}

// CredentialFrom returns the forwarded Authorization value, if any.
func CredentialFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(credentialKey{}).(string)
	return v, ok && v != ""
}
