package auth

import (
	"context"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Username    string
	Authorities []string
}

func (i Identity) HasAuthority(authority string) bool {
	for _, a := range i.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity, if the request carried a
// valid access token.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
