package auth

import (
	"context"
	"slices"
)

// Identity is a verified caller as produced by token verification.
type Identity struct {
	UserID      string
	TenantClaim string
	Permissions []string
}

// AuthContext is the resolved, immutable caller context for one request.
type AuthContext struct {
	userID      string
	tenantID    string
	permissions []string
}

// NewAuthContext builds an AuthContext. The permission slice is copied.
func NewAuthContext(userID, tenantID string, permissions []string) AuthContext {
	return AuthContext{
		userID:      userID,
		tenantID:    tenantID,
		permissions: slices.Clone(permissions),
	}
}

func (a AuthContext) UserID() string   { return a.userID }
func (a AuthContext) TenantID() string { return a.tenantID }

// Permissions returns a copy of the permission claims carried by the token.
func (a AuthContext) Permissions() []string { return slices.Clone(a.permissions) }

// IsZero reports whether the context was never resolved.
func (a AuthContext) IsZero() bool { return a.userID == "" && a.tenantID == "" }

type authContextKey struct{}
type tokenContextKey struct{}

// ContextWithAuth attaches the resolved AuthContext to ctx.
func ContextWithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthFromContext extracts the AuthContext attached by ContextWithAuth.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	ac, ok := ctx.Value(authContextKey{}).(AuthContext)
	if !ok || ac.IsZero() {
		return AuthContext{}, false
	}
	return ac, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
