package auth

import "context"

type ctxKey struct{}

// Identity is the decoded access token attached to an authenticated request.
type Identity struct {
	ID    int64
	Email string
	Role  Role
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(ctxKey{}).(Identity)
	return identity, ok
}

func identityFromClaims(claims Claims) Identity {
	return Identity{ID: claims.UserID, Email: claims.Email, Role: claims.Role}
}
