// Package identity is the boundary to the identity provider. It resolves the principal that owns a cart partition.
package identity

import "context"

// Identity is what the identity provider reports about the caller. An empty PrincipalID is the guest principal.
// Resolving is true while the provider has not decided yet.
type Identity struct {
	PrincipalID string
	Resolving   bool
}

// Guest is the unauthenticated principal.
var Guest = Identity{}

// User returns the identity of an authenticated principal.
func User(id string) Identity {
	return Identity{PrincipalID: id}
}

func (i Identity) IsGuest() bool {
	return i.PrincipalID == ""
}

func (i Identity) String() string {
	switch {
	case i.Resolving:
		return "resolving"
	case i.IsGuest():
		return "guest"
	default:
		return "user:" + i.PrincipalID
	}
}

type contextKey struct{}

// WithIdentity stores the caller's identity in ctx.
func WithIdentity(ctx context.Context, who Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, who)
}

// FromContext returns the identity stored by the middleware, or Guest.
func FromContext(ctx context.Context) Identity {
	if who, ok := ctx.Value(contextKey{}).(Identity); ok {
		return who
	}
	return Guest
}

type tokenKey struct{}

// WithToken stores the caller's bearer token so it can be forwarded to downstream APIs.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token of the caller, empty for guests and header-identified users.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
