package auth

import (
	"context"
	"strings"
	"time"

	"tessera.dev/internal/ids"
)

// RoleService manages tenant roles and their assignment to users.
type RoleService struct {
	store Store
	now   func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(store Store) *RoleService {
	return &RoleService{store: store, now: time.Now}
}

// CreateRole creates an empty role inside tenantID.
func (s *RoleService) CreateRole(ctx context.Context, tenantID, name, description string) (Role, error) {
	if err := requireIDs("tenant_id and name", &tenantID, &name); err != nil {
		return Role{}, err
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return Role{}, internalError("get tenant", err)
	}
	role, err := s.store.CreateRole(ctx, s.newRole(tenantID, name, description))
	if err != nil {
		return Role{}, internalError("create role", err)
	}
	return role, nil
}

// CreateRoleFromTemplate creates roleName inside tenantID carrying the
// template's permissions. The role and its claims are written together, so the
// role is never observable without them.
func (s *RoleService) CreateRoleFromTemplate(ctx context.Context, tenantID string, t TemplateType, roleName string) (Role, error) {
	tpl := TemplateFor(t)
	if err := requireIDs("tenant_id", &tenantID); err != nil {
		return Role{}, err
	}
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		roleName = string(tpl.Type)
	}
	var created Role
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetTenant(ctx, tenantID); err != nil {
			return internalError("get tenant", err)
		}
		role, err := tx.CreateRole(ctx, s.newRole(tenantID, roleName, tpl.Description))
		if err != nil {
			return internalError("create role", err)
		}
		if err := assignRoleClaims(ctx, tx, role.ID, tpl.Permissions); err != nil {
			return err
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// GetRole returns the role with id.
func (s *RoleService) GetRole(ctx context.Context, roleID string) (Role, error) {
	if err := requireIDs("role_id", &roleID); err != nil {
		return Role{}, err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, internalError("get role", err)
	}
	return role, nil
}

// ListRoles returns the roles of tenantID ordered by name.
func (s *RoleService) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	if err := requireIDs("tenant_id", &tenantID); err != nil {
		return nil, err
	}
	roles, err := s.store.ListRoles(ctx, tenantID)
	if err != nil {
		return nil, internalError("list roles", err)
	}
	return roles, nil
}

// DeleteRole removes the role, its claims and its user assignments.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	if err := requireIDs("role_id", &roleID); err != nil {
		return err
	}
	return internalError("delete role", s.store.DeleteRole(ctx, roleID))
}

// AssignRole assigns roleID to the user inside the role's tenant. The user
// must be an active member of that tenant. Re-assigning is a no-op.
func (s *RoleService) AssignRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	if err := requireIDs("user_id and role_id", &userID, &roleID); err != nil {
		return UserRole{}, err
	}
	var assigned UserRole
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		role, err := tx.GetRole(ctx, roleID)
		if err != nil {
			return internalError("get role", err)
		}
		if err := requireActiveMembership(ctx, tx, userID, role.TenantID); err != nil {
			return err
		}
		ur, err := tx.AssignUserRole(ctx, UserRole{ID: ids.New(), UserID: userID, RoleID: role.ID, TenantID: role.TenantID})
		if err != nil {
			return internalError("assign role", err)
		}
		assigned = ur
		return nil
	})
	if err != nil {
		return UserRole{}, err
	}
	return assigned, nil
}

// UnassignRole removes roleID from the user.
func (s *RoleService) UnassignRole(ctx context.Context, userID, roleID string) error {
	if err := requireIDs("user_id and role_id", &userID, &roleID); err != nil {
		return err
	}
	return internalError("unassign role", s.store.RemoveUserRole(ctx, userID, roleID))
}

// RolesForUser lists the roles assigned to the user inside tenantID.
func (s *RoleService) RolesForUser(ctx context.Context, userID, tenantID string) ([]Role, error) {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return nil, err
	}
	roles, err := s.store.ListUserRoles(ctx, userID, tenantID)
	if err != nil {
		return nil, internalError("list user roles", err)
	}
	return roles, nil
}

func (s *RoleService) newRole(tenantID, name, description string) Role {
	return Role{
		ID:          ids.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
}
