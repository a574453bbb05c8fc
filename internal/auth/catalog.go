package auth

import (
	"context"
	"errors"
	"sort"
	"time"

	"tessera.dev/internal/ids"
)

// BuiltinClaim describes a permission shipped with the catalog.
type BuiltinClaim struct {
	Value       string
	DisplayName string
	Description string
	Category    string
	// System entries are neither tenant-scoped nor assignable to tenant admins.
	System bool
}

// BuiltinClaims is the permission catalog seeded by CatalogService.EnsureBuiltins.
var BuiltinClaims = []BuiltinClaim{
	{PermUsersView, "View users", "List and inspect tenant users", "Users", false},
	{PermUsersCreate, "Create users", "Create users inside the tenant", "Users", false},
	{PermUsersEdit, "Edit users", "Update tenant user profiles", "Users", false},
	{PermUsersDelete, "Delete users", "Remove users from the tenant", "Users", false},
	{PermUsersInvite, "Invite users", "Invite existing users into the tenant", "Users", false},
	{PermUsersManageRoles, "Manage user roles", "Assign and unassign roles", "Users", false},

	{PermRolesView, "View roles", "List roles and their permissions", "Roles", false},
	{PermRolesCreate, "Create roles", "Create roles and roles from templates", "Roles", false},
	{PermRolesEdit, "Edit roles", "Change role permissions", "Roles", false},
	{PermRolesDelete, "Delete roles", "Delete roles", "Roles", false},

	{PermTenantSettingsView, "View tenant settings", "", "Tenant", false},
	{PermTenantSettingsEdit, "Edit tenant settings", "", "Tenant", false},

	{PermDashboardView, "View dashboard", "", "Dashboard", false},

	{PermReportsView, "View reports", "", "Reports", false},
	{PermReportsExport, "Export reports", "", "Reports", false},
	{PermReportsCreate, "Create reports", "", "Reports", false},

	{PermAuthenticationView, "View authentication settings", "", "Authentication", false},
	{PermAuthenticationManage, "Manage authentication settings", "", "Authentication", false},
	{PermAuthorizationView, "View permissions", "Inspect permission assignments", "Authorization", false},
	{PermAuthorizationManage, "Manage permissions", "Grant and revoke direct permissions", "Authorization", false},

	{PermAuditView, "View audit events", "", "Audit", false},
	{PermAuditExport, "Export audit events", "", "Audit", false},

	{PermSystemAdmin, "System administrator", "Access to every tenant-scoped, system and global permission", "System", true},
	{PermSystemSettingsView, "View system settings", "", "System", true},
	{PermSystemSettingsEdit, "Edit system settings", "", "System", true},

	{PermGlobalTenantsView, "View all tenants", "", "Global", true},
	{PermGlobalTenantsCreate, "Create tenants", "Provision new tenants", "Global", true},
	{PermGlobalTenantsDelete, "Delete tenants", "", "Global", true},
	{PermGlobalUsersView, "View all users", "", "Global", true},

	{PermCrossTenantAccess, "Cross-tenant access", "Access to global permissions across tenants", "Global", true},
	{PermBusinessOwner, "Business owner", "Unrestricted access", "Business", true},
}

// DefaultAdminPermissions returns every catalog entry that is tenant-scoped and
// not a system permission, in catalog order.
func DefaultAdminPermissions() []string {
	out := make([]string, 0, len(BuiltinClaims))
	for _, c := range BuiltinClaims {
		if c.System || ScopeOf(c.Value) != ScopeTenant {
			continue
		}
		out = append(out, c.Value)
	}
	return out
}

func builtinMasterClaims(now time.Time) []MasterClaim {
	out := make([]MasterClaim, 0, len(BuiltinClaims))
	for _, c := range BuiltinClaims {
		out = append(out, MasterClaim{
			ID:                 ids.New(),
			ClaimType:          ClaimTypePermission,
			ClaimValue:         c.Value,
			DisplayName:        c.DisplayName,
			Description:        c.Description,
			Category:           c.Category,
			IsTenantScoped:     !c.System && ScopeOf(c.Value) == ScopeTenant,
			IsSystemPermission: c.System,
			CreatedAt:          now,
		})
	}
	return out
}

// CatalogCategory groups catalog entries for display.
type CatalogCategory struct {
	Name   string        `json:"name"`
	Claims []MasterClaim `json:"claims"`
}

// CatalogService manages the master claim registry.
type CatalogService struct {
	repo CatalogRepository
	now  func() time.Time
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo CatalogRepository) (*CatalogService, error) {
	if repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	return &CatalogService{repo: repo, now: time.Now}, nil
}

// EnsureBuiltins upserts BuiltinClaims. Existing rows keep their identifiers.
func (s *CatalogService) EnsureBuiltins(ctx context.Context) error {
	if err := s.repo.UpsertMasterClaims(ctx, builtinMasterClaims(s.now().UTC())); err != nil {
		return internalError("ensure builtin claims", err)
	}
	return nil
}

// List returns every master claim ordered by value.
func (s *CatalogService) List(ctx context.Context) ([]MasterClaim, error) {
	claims, err := s.repo.ListMasterClaims(ctx)
	if err != nil {
		return nil, internalError("list master claims", err)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].ClaimValue < claims[j].ClaimValue })
	return claims, nil
}

// Categories returns the catalog grouped by category, both levels sorted.
func (s *CatalogService) Categories(ctx context.Context) ([]CatalogCategory, error) {
	claims, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*CatalogCategory)
	var names []string
	for _, c := range claims {
		cat, ok := byName[c.Category]
		if !ok {
			cat = &CatalogCategory{Name: c.Category}
			byName[c.Category] = cat
			names = append(names, c.Category)
		}
		cat.Claims = append(cat.Claims, c)
	}
	sort.Strings(names)
	out := make([]CatalogCategory, 0, len(names))
	for _, name := range names {
		out = append(out, *byName[name])
	}
	return out, nil
}

// resolveMasterClaims maps values to master claim ids, failing with
// ErrNotFound when a value is absent from the catalog.
func resolveMasterClaims(ctx context.Context, repo CatalogRepository, values []string) ([]string, error) {
	claims, err := lookupMasterClaims(ctx, repo, values)
	if err != nil {
		return nil, err
	}
	idsOut := make([]string, 0, len(claims))
	for _, c := range claims {
		idsOut = append(idsOut, c.ID)
	}
	return idsOut, nil
}

// resolveTenantClaims is resolveMasterClaims for grants made inside a tenant.
// System entries, the hierarchy markers among them, are refused with
// ErrForbidden: they reach every tenant and are granted only by operators.
func resolveTenantClaims(ctx context.Context, repo CatalogRepository, values []string) ([]string, error) {
	claims, err := lookupMasterClaims(ctx, repo, values)
	if err != nil {
		return nil, err
	}
	idsOut := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.IsSystemPermission {
			return nil, forbiddenf("permission %q is reserved for platform operators", c.ClaimValue)
		}
		idsOut = append(idsOut, c.ID)
	}
	return idsOut, nil
}

// lookupMasterClaims returns the catalog entries for values in the same order.
func lookupMasterClaims(ctx context.Context, repo CatalogRepository, values []string) ([]MasterClaim, error) {
	if len(values) == 0 {
		return nil, nil
	}
	claims, err := repo.MasterClaimsByValue(ctx, values)
	if err != nil {
		return nil, internalError("lookup master claims", err)
	}
	byValue := make(map[string]MasterClaim, len(claims))
	for _, c := range claims {
		byValue[c.ClaimValue] = c
	}
	out := make([]MasterClaim, 0, len(values))
	for _, v := range values {
		c, ok := byValue[v]
		if !ok {
			return nil, notFoundf("permission %q is not in the catalog", v)
		}
		out = append(out, c)
	}
	return out, nil
}
