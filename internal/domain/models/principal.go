package models

import (
	"context"

	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
)

// Principal is the authenticated caller extracted from a platform-issued
// access token. The dispatch and traffic services keep no user store of
// their own; identity lives upstream.
type Principal struct {
	ID   uuid.UUID
	Role types.UserRole
}

var anonymous = Principal{}

func AnonymousPrincipal() *Principal {
	p := anonymous
	return &p
}

func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == uuid.Nil
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == types.RoleAdmin
}

type principalCtxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the caller, or nil when the request never
// passed through the auth middleware.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*Principal)
	return p
}
