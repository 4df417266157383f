// Package identity carries the ambient caller identity supplied by an
// external identity provider through the request context.
package identity

import "context"

// Principal describes the authenticated actor for the current request.
// RoleClaims, when present, are role assertions issued by the identity
// provider and take precedence over store lookups.
type Principal struct {
	UserID        string
	Authenticated bool
	RoleClaims    []string
}

// Anonymous returns the unauthenticated principal.
func Anonymous() *Principal {
	return &Principal{}
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
