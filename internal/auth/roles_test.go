package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

func TestTemplates(t *testing.T) {
	want := map[auth.TemplateType]int{
		auth.TemplateTenantAdmin: 20,
		auth.TemplateUserManager: 7,
		auth.TemplateViewer:      5,
		auth.TemplateBasicUser:   1,
	}
	templates := auth.ListTemplates()
	require.Len(t, templates, len(want))
	for _, tpl := range templates {
		assert.Len(t, tpl.Permissions, want[tpl.Type], tpl.Type)
		for _, p := range tpl.Permissions {
			assert.True(t, auth.ValidPermission(p), p)
			assert.Equal(t, auth.ScopeTenant, auth.ScopeOf(p), p)
		}
	}
	assert.Equal(t, []string{auth.PermDashboardView}, auth.TemplateFor(auth.TemplateBasicUser).Permissions)
}

func TestTemplateForReturnsCopy(t *testing.T) {
	tpl := auth.TemplateFor(auth.TemplateViewer)
	tpl.Permissions[0] = "tampered"
	assert.Equal(t, auth.PermUsersView, auth.TemplateFor(auth.TemplateViewer).Permissions[0])
}

func TestParseTemplateType(t *testing.T) {
	got, err := auth.ParseTemplateType(" tenantadmin ")
	require.NoError(t, err)
	assert.Equal(t, auth.TemplateTenantAdmin, got)

	_, err = auth.ParseTemplateType("SuperUser")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	assert.Panics(t, func() { auth.TemplateFor("SuperUser") })
}

func TestCreateRoleFromTemplateIsDeterministic(t *testing.T) {
	f := newFixture(t)
	for _, slug := range []string{"acme", "globex", "initech"} {
		tenant := f.tenant(slug)
		role, err := f.svc.Roles.CreateRoleFromTemplate(f.ctx, tenant, auth.TemplateTenantAdmin, "X")
		require.NoError(t, err)
		assert.Equal(t, "X", role.Name)
		assert.Equal(t, tenant, role.TenantID)

		perms, err := f.svc.Claims.ClaimsForRole(f.ctx, role.ID)
		require.NoError(t, err)
		assert.Len(t, perms, 20)
		assert.Contains(t, perms, auth.PermUsersView)
		assert.Contains(t, perms, auth.PermAuditView)
	}
}

func TestCreateRoleFromTemplateDefaultsName(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	role, err := f.svc.Roles.CreateRoleFromTemplate(f.ctx, tenant, auth.TemplateViewer, " ")
	require.NoError(t, err)
	assert.Equal(t, string(auth.TemplateViewer), role.Name)

	_, err = f.svc.Roles.CreateRoleFromTemplate(f.ctx, tenant, auth.TemplateViewer, "")
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestCreateRoleFromTemplateRollsBack(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")

	roles := auth.NewRoleService(failingStore{Store: f.store, failOn: "AddRoleClaims"})
	_, err := roles.CreateRoleFromTemplate(f.ctx, tenant, auth.TemplateViewer, "V")
	require.ErrorIs(t, err, auth.ErrInternal)

	list, err := f.svc.Roles.ListRoles(f.ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateRoleValidation(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")

	_, err := f.svc.Roles.CreateRole(f.ctx, tenant, " ", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = f.svc.Roles.CreateRole(f.ctx, ids.New(), "R", "")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = f.svc.Roles.CreateRole(f.ctx, tenant, "R", "first")
	require.NoError(t, err)
	_, err = f.svc.Roles.CreateRole(f.ctx, tenant, "R", "second")
	assert.ErrorIs(t, err, auth.ErrConflict)

	other := f.tenant("globex")
	_, err = f.svc.Roles.CreateRole(f.ctx, other, "R", "")
	assert.NoError(t, err)
}

func TestAssignRoleRequiresMembership(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	user := f.user("u@example.com")
	roleID := f.role(tenant, "R", auth.PermUsersView)

	_, err := f.svc.Roles.AssignRole(f.ctx, user, roleID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	f.member(user, tenant)
	ur, err := f.svc.Roles.AssignRole(f.ctx, user, roleID)
	require.NoError(t, err)
	assert.Equal(t, tenant, ur.TenantID)

	again, err := f.svc.Roles.AssignRole(f.ctx, user, roleID)
	require.NoError(t, err)
	assert.Equal(t, ur.ID, again.ID)

	roles, err := f.svc.Roles.RolesForUser(f.ctx, user, tenant)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, roleID, roles[0].ID)
}

func TestUnassignRole(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	user := f.user("u@example.com")
	f.member(user, tenant)
	roleID := f.role(tenant, "R", auth.PermUsersView)
	_, err := f.svc.Roles.AssignRole(f.ctx, user, roleID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Roles.UnassignRole(f.ctx, user, roleID))
	assert.False(t, f.has(user, tenant, auth.PermUsersView))
	assert.ErrorIs(t, f.svc.Roles.UnassignRole(f.ctx, user, roleID), auth.ErrNotFound)
}

func TestDeleteRoleRevokesPermissions(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	user := f.user("u@example.com")
	f.member(user, tenant)
	roleID := f.role(tenant, "R", auth.PermUsersView)
	f.grant(user, roleID)
	require.True(t, f.has(user, tenant, auth.PermUsersView))

	require.NoError(t, f.svc.Roles.DeleteRole(f.ctx, roleID))
	assert.False(t, f.has(user, tenant, auth.PermUsersView))

	_, err := f.svc.Roles.GetRole(f.ctx, roleID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, f.svc.Roles.DeleteRole(f.ctx, roleID), auth.ErrNotFound)
}
