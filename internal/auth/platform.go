package auth

import (
	"context"
	"strings"

	"tessera.dev/internal/ids"
)

// DefaultPlatformRoleName names the operator role created by GrantPlatformRole.
const DefaultPlatformRoleName = "PlatformOperator"

// PlatformGrant asks for a role carrying system permissions or hierarchy
// markers to be given to an existing member of a tenant.
type PlatformGrant struct {
	TenantSlug  string
	Email       string
	RoleName    string
	Permissions []string
}

// GrantPlatformRole finds or creates RoleName in the tenant, adds Permissions
// to it without the tenant restriction on system entries, and assigns it to
// the user. The user must already be an active member. Everything runs in one
// transaction. It backs operator tooling and has no HTTP route.
func (s *RoleService) GrantPlatformRole(ctx context.Context, g PlatformGrant) (Role, error) {
	g.Email = strings.ToLower(g.Email)
	if err := requireIDs("tenant slug and email", &g.TenantSlug, &g.Email); err != nil {
		return Role{}, err
	}
	g.RoleName = strings.TrimSpace(g.RoleName)
	if g.RoleName == "" {
		g.RoleName = DefaultPlatformRoleName
	}
	values, err := requirePermissions(g.Permissions)
	if err != nil {
		return Role{}, err
	}

	var granted Role
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		tenant, err := tx.GetTenantBySlug(ctx, g.TenantSlug)
		if err != nil {
			return internalError("get tenant", err)
		}
		user, err := tx.GetUserByEmail(ctx, g.Email)
		if err != nil {
			return internalError("get user", err)
		}
		if err := requireActiveMembership(ctx, tx, user.ID, tenant.ID); err != nil {
			return err
		}
		role, err := findOrCreateRole(ctx, tx, tenant.ID, g.RoleName, s.newRole)
		if err != nil {
			return err
		}
		claimIDs, err := resolveMasterClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		if err := tx.AddRoleClaims(ctx, role.ID, claimIDs); err != nil {
			return internalError("add role claims", err)
		}
		if _, err := tx.AssignUserRole(ctx, UserRole{ID: ids.New(), UserID: user.ID, RoleID: role.ID, TenantID: tenant.ID}); err != nil {
			return internalError("assign role", err)
		}
		granted = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return granted, nil
}

func findOrCreateRole(ctx context.Context, tx Repository, tenantID, name string, newRole func(tenantID, name, description string) Role) (Role, error) {
	roles, err := tx.ListRoles(ctx, tenantID)
	if err != nil {
		return Role{}, internalError("list roles", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r, nil
		}
	}
	role, err := tx.CreateRole(ctx, newRole(tenantID, name, "Platform operators"))
	if err != nil {
		return Role{}, internalError("create role", err)
	}
	return role, nil
}
