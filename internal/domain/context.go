package domain

import "context"

type ownerKey struct{}

// ContextOwner carries the authenticated identity through request context.
type ContextOwner struct {
	ID    string // JWT subject; tables are scoped to it
	Email string
}

// WithOwner stores a ContextOwner in the context.
func WithOwner(ctx context.Context, o ContextOwner) context.Context {
	return context.WithValue(ctx, ownerKey{}, o)
}

// OwnerFromContext extracts the ContextOwner from the context.
func OwnerFromContext(ctx context.Context) (ContextOwner, bool) {
	o, ok := ctx.Value(ownerKey{}).(ContextOwner)
	return o, ok && o.ID != ""
}
