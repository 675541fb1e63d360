package httpx

import (
	"context"

	"github.com/hakim-ai/identity-gateway/internal/service"
)

// principalKey is an unexported context key type to avoid collisions across packages.
type principalKey struct{}

// SetPrincipalInContext returns a child context that carries the given principal.
// If p is nil, the original ctx is returned unchanged.
func SetPrincipalInContext(ctx context.Context, p *service.Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipalFromContext returns the authenticated principal and whether one is present.
func GetPrincipalFromContext(ctx context.Context) (*service.Principal, bool) {
	if p, ok := ctx.Value(principalKey{}).(*service.Principal); ok && p != nil {
		return p, true
	}
	return nil, false
}
