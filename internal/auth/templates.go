package auth

import (
	"fmt"
	"strings"
)

// TemplateType names a built-in role template.
type TemplateType string

const (
	TemplateTenantAdmin TemplateType = "TenantAdmin"
	TemplateUserManager TemplateType = "UserManager"
	TemplateViewer      TemplateType = "Viewer"
	TemplateBasicUser   TemplateType = "BasicUser"
)

// RoleTemplate is a fixed bundle of permissions used to stamp out roles.
type RoleTemplate struct {
	Type        TemplateType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []string     `json:"permissions"`
}

var templateOrder = []TemplateType{
	TemplateTenantAdmin,
	TemplateUserManager,
	TemplateViewer,
	TemplateBasicUser,
}

var roleTemplates = map[TemplateType]RoleTemplate{
	TemplateTenantAdmin: {
		Type:        TemplateTenantAdmin,
		Name:        "Tenant Administrator",
		Description: "Full administrative access inside the tenant",
		Permissions: []string{
			PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete, PermUsersInvite, PermUsersManageRoles,
			PermRolesView, PermRolesCreate, PermRolesEdit, PermRolesDelete,
			PermTenantSettingsView, PermTenantSettingsEdit,
			PermDashboardView,
			PermReportsView, PermReportsExport,
			PermAuthenticationView, PermAuthenticationManage,
			PermAuthorizationView, PermAuthorizationManage,
			PermAuditView,
		},
	},
	TemplateUserManager: {
		Type:        TemplateUserManager,
		Name:        "User Manager",
		Description: "Manages users and their role assignments",
		Permissions: []string{
			PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersInvite, PermUsersManageRoles,
			PermRolesView,
			PermDashboardView,
		},
	},
	TemplateViewer: {
		Type:        TemplateViewer,
		Name:        "Viewer",
		Description: "Read-only access to users, roles, settings and reports",
		Permissions: []string{
			PermUsersView,
			PermRolesView,
			PermTenantSettingsView,
			PermDashboardView,
			PermReportsView,
		},
	},
	TemplateBasicUser: {
		Type:        TemplateBasicUser,
		Name:        "Basic User",
		Description: "Dashboard access only",
		Permissions: []string{PermDashboardView},
	},
}

// ListTemplates returns the four templates in a stable order. Callers own the
// returned slices.
func ListTemplates() []RoleTemplate {
	out := make([]RoleTemplate, 0, len(templateOrder))
	for _, t := range templateOrder {
		out = append(out, TemplateFor(t))
	}
	return out
}

// TemplateFor returns the template for t. An unknown type is a programming
// error and panics; use ParseTemplateType for untrusted input.
func TemplateFor(t TemplateType) RoleTemplate {
	tpl, ok := roleTemplates[t]
	if !ok {
		panic(fmt.Sprintf("auth: unknown role template %q", string(t)))
	}
	tpl.Permissions = append([]string(nil), tpl.Permissions...)
	return tpl
}

// ParseTemplateType converts a wire value into a TemplateType. Matching is
// case-insensitive.
func ParseTemplateType(raw string) (TemplateType, error) {
	raw = strings.TrimSpace(raw)
	for _, t := range templateOrder {
		if strings.EqualFold(raw, string(t)) {
			return t, nil
		}
	}
	return "", invalidInputf("unknown role template %q", raw)
}
