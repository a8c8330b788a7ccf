// Package identity resolves the caller's principal from platform
// headers and scopes requests to a tenant.
package identity

import (
	"context"
	"slices"
)

// DefaultTenant is the shared tenant used by this deployment. All
// incidents live under it regardless of who the caller is.
const DefaultTenant = "default"

// Principal identifies the caller. The zero value is anonymous.
type Principal struct {
	UserID      string
	DisplayName string
	Provider    string
	Roles       []string
}

// Anonymous returns the principal used when no identity is present or
// the identity header cannot be decoded.
func Anonymous() Principal {
	return Principal{
		UserID:      "anonymous",
		DisplayName: "anonymous",
		Provider:    "anonymous",
	}
}

// IsAnonymous reports whether the principal carries no real identity.
func (p Principal) IsAnonymous() bool {
	return p.UserID == "" || p.UserID == "anonymous"
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// TenantID returns the partition key for the principal's data. The
// deployment shares a single tenant; deriving a per-user tenant here
// changes no other contract.
func (p Principal) TenantID() string {
	return DefaultTenant
}

type ctxKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the request's principal, or anonymous when none
// was resolved.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(ctxKey{}).(Principal); ok {
		return p
	}
	return Anonymous()
}
