package auth

import (
	"context"
	"errors"
	"strings"

	"tessera.dev/internal/ids"
)

// Guard enforces tenant isolation for verified identities.
type Guard struct {
	resolver *Resolver
}

// NewGuard constructs a Guard that consults resolver for bypass checks.
func NewGuard(resolver *Resolver) (*Guard, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	return &Guard{resolver: resolver}, nil
}

// Resolve turns a verified identity into an AuthContext. An identity without
// a well-formed tenant claim is rejected with ErrForbidden.
func (g *Guard) Resolve(id Identity) (AuthContext, error) {
	userID := strings.TrimSpace(id.UserID)
	if userID == "" {
		return AuthContext{}, ErrUnauthorized
	}
	tenantID := strings.TrimSpace(id.TenantClaim)
	if tenantID == "" {
		return AuthContext{}, forbiddenf("tenant claim is missing")
	}
	if !ids.Valid(tenantID) {
		return AuthContext{}, forbiddenf("tenant claim is malformed")
	}
	return NewAuthContext(userID, tenantID, dedupeStrings(id.Permissions)), nil
}

// Authorize evaluates req for the caller inside its own tenant.
func (g *Guard) Authorize(ctx context.Context, ac AuthContext, req Requirement) (Decision, error) {
	if ac.IsZero() {
		return Decision{}, ErrUnauthorized
	}
	return g.resolver.Evaluate(ctx, ac.UserID(), ac.TenantID(), req)
}

// AuthorizeResource evaluates req for a resource owned by resourceTenantID.
// Resources of the caller's tenant use the normal evaluation; resources of
// another tenant are reachable only through the hierarchy markers.
func (g *Guard) AuthorizeResource(ctx context.Context, ac AuthContext, resourceTenantID string, req Requirement) (Decision, error) {
	if ac.IsZero() {
		return Decision{}, ErrUnauthorized
	}
	resourceTenantID = strings.TrimSpace(resourceTenantID)
	if resourceTenantID == "" {
		return Decision{}, invalidInputf("resource tenant is required")
	}
	if resourceTenantID == ac.TenantID() {
		return g.resolver.Evaluate(ctx, ac.UserID(), ac.TenantID(), req)
	}
	return g.resolver.EvaluateBypass(ctx, ac.UserID(), req)
}
