package auth

import "context"

type ctxKey string

const userKey ctxKey = "auth_user"

// ContextWithUser stores the authenticated principal in the context. The
// principal always travels explicitly with the request; there is no global
// current-user state.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated principal, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}
