package models

import (
	"context"
)

// Identity is what a verified bearer credential resolves to.
type Identity struct {
	UserID  string
	Email   string
	IsAdmin bool
}

type identityKey struct{}

// SetIdentityContext returns a copy of ctx carrying id.
func SetIdentityContext(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by the bearer middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
