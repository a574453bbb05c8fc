package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
)

func TestValidPermission(t *testing.T) {
	tests := map[string]bool{
		"users.view":          true,
		"users.manage.roles":  true,
		"global.tenants.view": true,
		"business.owner":      true,
		"report_v2.export-1":  true,
		"":                    false,
		"Users.view":          false,
		"users..view":         false,
		".users":              false,
		"users.":              false,
		" users.view":         false,
		"system.":             false,
		"users/view":          false,
	}
	for p, want := range tests {
		assert.Equal(t, want, auth.ValidPermission(p), "%q", p)
	}
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, auth.ScopeTenant, auth.ScopeOf("users.view"))
	assert.Equal(t, auth.ScopeGlobal, auth.ScopeOf("global.tenants.view"))
	assert.Equal(t, auth.ScopeSystem, auth.ScopeOf("system.admin"))
	assert.Equal(t, auth.ScopeBusiness, auth.ScopeOf("business.owner"))
	assert.Equal(t, auth.ScopeCross, auth.ScopeOf("cross.tenant.access"))
	assert.Equal(t, auth.ScopeTenant, auth.ScopeOf("globalish.view"))
}

func TestBuiltinCatalog(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range auth.BuiltinClaims {
		assert.True(t, auth.ValidPermission(c.Value), c.Value)
		assert.False(t, seen[c.Value], "duplicate %s", c.Value)
		seen[c.Value] = true
		assert.Equal(t, auth.ScopeOf(c.Value) != auth.ScopeTenant, c.System, c.Value)
	}
	for _, tpl := range auth.ListTemplates() {
		for _, p := range tpl.Permissions {
			assert.True(t, seen[p], "template %s references %s", tpl.Type, p)
		}
	}

	admin := auth.DefaultAdminPermissions()
	assert.Contains(t, admin, auth.PermUsersView)
	assert.NotContains(t, admin, auth.PermSystemAdmin)
	assert.NotContains(t, admin, auth.PermBusinessOwner)
	assert.Subset(t, admin, auth.TemplateFor(auth.TemplateTenantAdmin).Permissions)
}

func TestEnsureBuiltinsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	before, err := f.svc.Catalog.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, before, len(auth.BuiltinClaims))

	require.NoError(t, f.svc.Catalog.EnsureBuiltins(f.ctx))
	after, err := f.svc.Catalog.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].ClaimValue, after[i].ClaimValue)
	}
}

func TestCatalogCategories(t *testing.T) {
	f := newFixture(t)
	cats, err := f.svc.Catalog.Categories(f.ctx)
	require.NoError(t, err)

	total := 0
	var names []string
	for _, c := range cats {
		names = append(names, c.Name)
		total += len(c.Claims)
		for _, claim := range c.Claims {
			assert.Equal(t, c.Name, claim.Category)
			assert.Equal(t, auth.ClaimTypePermission, claim.ClaimType)
		}
	}
	assert.Equal(t, len(auth.BuiltinClaims), total)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "Users")
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := auth.NewService(nil)
	assert.Error(t, err)
	_, err = auth.NewProvisioner(nil)
	assert.Error(t, err)
	_, err = auth.NewResolver(nil)
	assert.Error(t, err)
	_, err = auth.NewGuard(nil)
	assert.Error(t, err)
}
