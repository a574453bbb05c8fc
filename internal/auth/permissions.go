package auth

import "strings"

// Scope prefixes recognised in permission strings. A permission without one
// of these prefixes is tenant-scoped.
const (
	PrefixGlobal   = "global."
	PrefixSystem   = "system."
	PrefixBusiness = "business."
	PrefixCross    = "cross."
)

// Bypass markers evaluated before the tenant-scoped union.
const (
	PermBusinessOwner     = "business.owner"
	PermSystemAdmin       = "system.admin"
	PermCrossTenantAccess = "cross.tenant.access"
)

const (
	PermUsersView        = "users.view"
	PermUsersCreate      = "users.create"
	PermUsersEdit        = "users.edit"
	PermUsersDelete      = "users.delete"
	PermUsersInvite      = "users.invite"
	PermUsersManageRoles = "users.manage.roles"

	PermRolesView   = "roles.view"
	PermRolesCreate = "roles.create"
	PermRolesEdit   = "roles.edit"
	PermRolesDelete = "roles.delete"

	PermTenantSettingsView = "tenant.settings.view"
	PermTenantSettingsEdit = "tenant.settings.edit"

	PermDashboardView = "dashboard.view"

	PermReportsView   = "reports.view"
	PermReportsCreate = "reports.create"
	PermReportsExport = "reports.export"

	PermAuthenticationView   = "authentication.view"
	PermAuthenticationManage = "authentication.manage"
	PermAuthorizationView    = "authorization.view"
	PermAuthorizationManage  = "authorization.manage"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"

	PermSystemSettingsView = "system.settings.view"
	PermSystemSettingsEdit = "system.settings.edit"

	PermGlobalTenantsView   = "global.tenants.view"
	PermGlobalTenantsCreate = "global.tenants.create"
	PermGlobalTenantsDelete = "global.tenants.delete"
	PermGlobalUsersView     = "global.users.view"
)

// Scope classifies a permission string by its prefix.
type Scope string

const (
	ScopeTenant   Scope = "tenant"
	ScopeGlobal   Scope = "global"
	ScopeSystem   Scope = "system"
	ScopeBusiness Scope = "business"
	ScopeCross    Scope = "cross"
)

var prefixScopes = []struct {
	prefix string
	scope  Scope
}{
	{PrefixGlobal, ScopeGlobal},
	{PrefixSystem, ScopeSystem},
	{PrefixBusiness, ScopeBusiness},
	{PrefixCross, ScopeCross},
}

// ScopeOf returns the scope encoded in the permission prefix.
func ScopeOf(permission string) Scope {
	for _, ps := range prefixScopes {
		if strings.HasPrefix(permission, ps.prefix) {
			return ps.scope
		}
	}
	return ScopeTenant
}

// ValidPermission reports whether permission follows the grammar
// prefix? segment ("." segment)* with lower-case [a-z0-9_-] segments.
func ValidPermission(permission string) bool {
	if permission == "" || strings.TrimSpace(permission) != permission {
		return false
	}
	body := permission
	for _, ps := range prefixScopes {
		if strings.HasPrefix(permission, ps.prefix) {
			body = strings.TrimPrefix(permission, ps.prefix)
			break
		}
	}
	if body == "" {
		return false
	}
	for _, segment := range strings.Split(body, ".") {
		if !validSegment(segment) {
			return false
		}
	}
	return true
}

func validSegment(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// normalizePermissions trims, validates and de-duplicates permission values,
// preserving first-seen order.
func normalizePermissions(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if !ValidPermission(v) {
			return nil, invalidInputf("malformed permission %q", v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
