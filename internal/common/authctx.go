package common

import "context"

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	rolesKey  ctxKey = "auth/roles"
	anonIDKey ctxKey = "cart/anon-id"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithRoles stores the authenticated user's roles.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}

// HasRole reports whether the authenticated user carries role.
func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(rolesKey).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithAnonID stores the guest cart identifier read from the request cookie.
func WithAnonID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, anonIDKey, id)
}

// AnonID extracts the guest cart identifier if present.
func AnonID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(anonIDKey).(string)
	return id, ok && id != ""
}
