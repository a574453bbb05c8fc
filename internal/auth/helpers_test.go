package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
	"tessera.dev/internal/store/memory"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	svc   *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	svc, err := auth.NewService(store)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.Catalog.EnsureBuiltins(ctx))
	return &fixture{t: t, ctx: ctx, store: store, svc: svc}
}

func (f *fixture) tenant(slug string) string {
	f.t.Helper()
	tenant, err := f.store.CreateTenant(f.ctx, auth.Tenant{ID: ids.New(), Name: slug, Slug: slug})
	require.NoError(f.t, err)
	return tenant.ID
}

func (f *fixture) user(email string) string {
	f.t.Helper()
	u, err := f.store.CreateUser(f.ctx, auth.User{ID: ids.New(), Email: email, PasswordHash: "x"})
	require.NoError(f.t, err)
	return u.ID
}

func (f *fixture) member(userID, tenantID string) {
	f.t.Helper()
	_, err := f.store.UpsertMembership(f.ctx, auth.UserTenant{
		UserID:   userID,
		TenantID: tenantID,
		IsActive: true,
		JoinedAt: time.Now().UTC(),
	})
	require.NoError(f.t, err)
}

// role creates a role in tenantID carrying perms.
func (f *fixture) role(tenantID, name string, perms ...string) string {
	f.t.Helper()
	role, err := f.svc.Roles.CreateRole(f.ctx, tenantID, name, "")
	require.NoError(f.t, err)
	if len(perms) > 0 {
		require.NoError(f.t, f.svc.Claims.AssignToRole(f.ctx, role.ID, perms))
	}
	return role.ID
}

// platformRole creates a role in tenantID through the operator path, so perms
// may include system permissions and hierarchy markers.
func (f *fixture) platformRole(tenantID, name string, perms ...string) string {
	f.t.Helper()
	role, err := f.svc.Roles.CreateRole(f.ctx, tenantID, name, "")
	require.NoError(f.t, err)
	require.NoError(f.t, f.svc.Claims.GrantPlatformClaims(f.ctx, role.ID, perms))
	return role.ID
}

// directMarker writes a direct claim row straight to the store, bypassing the
// tenant restriction on system permissions.
func (f *fixture) directMarker(userID, tenantID, value string) {
	f.t.Helper()
	claims, err := f.store.MasterClaimsByValue(f.ctx, []string{value})
	require.NoError(f.t, err)
	require.Len(f.t, claims, 1)
	require.NoError(f.t, f.store.AddUserClaims(f.ctx, userID, tenantID, []string{claims[0].ID}))
}

// grant assigns roleID to userID without checking membership.
func (f *fixture) grant(userID, roleID string) {
	f.t.Helper()
	_, err := f.store.AssignUserRole(f.ctx, auth.UserRole{UserID: userID, RoleID: roleID})
	require.NoError(f.t, err)
}

// holder returns a user that holds perms through a role in a separate tenant
// and has no membership anywhere.
func (f *fixture) holder(email string, perms ...string) string {
	f.t.Helper()
	platform := f.tenant("platform-" + ids.New())
	userID := f.user(email)
	f.grant(userID, f.platformRole(platform, "markers", perms...))
	return userID
}

func (f *fixture) has(userID, tenantID, perm string) bool {
	f.t.Helper()
	ok, err := f.svc.Resolver.HasPermission(f.ctx, userID, tenantID, perm)
	require.NoError(f.t, err)
	return ok
}

var errBoom = errors.New("boom")

// failingStore injects a failure into one repository call made inside a
// transaction.
type failingStore struct {
	*memory.Store
	failOn string
}

func (s failingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx auth.Repository) error) error {
	return s.Store.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
		return fn(ctx, failingRepo{Repository: tx, failOn: s.failOn})
	})
}

type failingRepo struct {
	auth.Repository
	failOn string
}

func (r failingRepo) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if r.failOn == "CreateUser" {
		return auth.User{}, errBoom
	}
	return r.Repository.CreateUser(ctx, u)
}

func (r failingRepo) AssignUserRole(ctx context.Context, ur auth.UserRole) (auth.UserRole, error) {
	if r.failOn == "AssignUserRole" {
		return auth.UserRole{}, errBoom
	}
	return r.Repository.AssignUserRole(ctx, ur)
}

func (r failingRepo) AddRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error {
	if r.failOn == "AddRoleClaims" {
		return errBoom
	}
	return r.Repository.AddRoleClaims(ctx, roleID, masterClaimIDs)
}

func (r failingRepo) ClearRoleClaims(ctx context.Context, roleID string) error {
	if r.failOn == "ClearRoleClaims" {
		return errBoom
	}
	return r.Repository.ClearRoleClaims(ctx, roleID)
}
