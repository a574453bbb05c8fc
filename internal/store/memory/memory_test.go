package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

func seed(t *testing.T, s *Store) (tenantID, userID, roleID, claimID string) {
	t.Helper()
	ctx := context.Background()
	tenant, err := s.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, auth.User{ID: ids.New(), Email: "U@Example.com"})
	require.NoError(t, err)
	role, err := s.CreateRole(ctx, auth.Role{ID: ids.New(), TenantID: tenant.ID, Name: "R"})
	require.NoError(t, err)
	claimID = ids.New()
	require.NoError(t, s.UpsertMasterClaims(ctx, []auth.MasterClaim{{ID: claimID, ClaimValue: "users.view"}}))
	return tenant.ID, user.ID, role.ID, claimID
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
		if _, err := tx.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"}); err != nil {
			return err
		}
		// Writes are visible inside the transaction.
		if _, err := tx.GetTenantBySlug(ctx, "acme"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetTenantBySlug(ctx, "acme")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
			if _, err := tx.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	_, err := s.GetTenantBySlug(ctx, "acme")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	// The store stays usable after the panic.
	_, err = s.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"})
	assert.NoError(t, err)
}

func TestTransactionRollsBackOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
		if _, err := tx.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.GetTenantBySlug(context.Background(), "acme")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTransactionCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
		_, err := tx.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Acme", Slug: "acme"})
		return err
	})
	require.NoError(t, err)
	_, err = s.GetTenantBySlug(ctx, "acme")
	assert.NoError(t, err)
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, _, _, _ := seed(t, s)

	_, err := s.CreateTenant(ctx, auth.Tenant{ID: ids.New(), Name: "Other", Slug: "acme"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = s.CreateUser(ctx, auth.User{ID: ids.New(), Email: " u@example.COM"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = s.CreateRole(ctx, auth.Role{ID: ids.New(), TenantID: tenantID, Name: "R"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = s.CreateRole(ctx, auth.Role{ID: ids.New(), TenantID: ids.New(), Name: "R"})
	assert.ErrorIs(t, err, auth.ErrNotFound)

	u, err := s.GetUserByEmail(ctx, "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", u.Email)
}

func TestMembershipUpsertKeepsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, userID, _, _ := seed(t, s)

	first, err := s.UpsertMembership(ctx, auth.UserTenant{UserID: userID, TenantID: tenantID, JoinedAt: time.Now()})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	left := time.Now()
	second, err := s.UpsertMembership(ctx, auth.UserTenant{ID: ids.New(), UserID: userID, TenantID: tenantID, IsActive: true, LeftAt: &left})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Nil(t, second.LeftAt)

	_, err = s.UpsertMembership(ctx, auth.UserTenant{UserID: ids.New(), TenantID: tenantID})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestDeleteRoleCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, userID, roleID, claimID := seed(t, s)

	require.NoError(t, s.AddRoleClaims(ctx, roleID, []string{claimID, claimID}))
	_, err := s.AssignUserRole(ctx, auth.UserRole{UserID: userID, RoleID: roleID})
	require.NoError(t, err)

	values, err := s.UserRoleClaimValues(ctx, userID, &tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{"users.view"}, values)

	require.NoError(t, s.DeleteRole(ctx, roleID))
	values, err = s.UserRoleClaimValues(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
	roles, err := s.ListUserRoles(ctx, userID, tenantID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestClaimRowsRequireParents(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, userID, roleID, claimID := seed(t, s)

	assert.ErrorIs(t, s.AddRoleClaims(ctx, ids.New(), []string{claimID}), auth.ErrNotFound)
	assert.ErrorIs(t, s.AddRoleClaims(ctx, roleID, []string{ids.New()}), auth.ErrNotFound)
	assert.ErrorIs(t, s.AddUserClaims(ctx, ids.New(), tenantID, []string{claimID}), auth.ErrNotFound)
	assert.ErrorIs(t, s.AddUserClaims(ctx, userID, ids.New(), []string{claimID}), auth.ErrNotFound)

	require.NoError(t, s.AddUserClaims(ctx, userID, tenantID, []string{claimID}))
	require.NoError(t, s.AddUserClaims(ctx, userID, tenantID, []string{claimID}))
	values, err := s.UserDirectClaimValues(ctx, userID, &tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{"users.view"}, values)

	require.NoError(t, s.DeleteUserGrants(ctx, userID, tenantID))
	values, err = s.UserDirectClaimValues(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestAssignUserRoleIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, userID, roleID, _ := seed(t, s)

	first, err := s.AssignUserRole(ctx, auth.UserRole{UserID: userID, RoleID: roleID})
	require.NoError(t, err)
	assert.Equal(t, tenantID, first.TenantID)
	second, err := s.AssignUserRole(ctx, auth.UserRole{ID: ids.New(), UserID: userID, RoleID: roleID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, s.RemoveUserRole(ctx, userID, roleID))
	assert.ErrorIs(t, s.RemoveUserRole(ctx, userID, roleID), auth.ErrNotFound)
}

func TestConcurrentTransactionsSerialise(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenantID, userID, roleID, _ := seed(t, s)

	claimIDs := make([]string, 20)
	claims := make([]auth.MasterClaim, 20)
	for i := range claims {
		claimIDs[i] = ids.New()
		claims[i] = auth.MasterClaim{ID: claimIDs[i], ClaimValue: "perm.n" + string(rune('a'+i))}
	}
	require.NoError(t, s.UpsertMasterClaims(ctx, claims))
	_, err := s.AssignUserRole(ctx, auth.UserRole{UserID: userID, RoleID: roleID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range claimIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := s.WithTransaction(ctx, func(ctx context.Context, tx auth.Repository) error {
				if err := tx.ClearRoleClaims(ctx, roleID); err != nil {
					return err
				}
				return tx.AddRoleClaims(ctx, roleID, []string{id})
			})
			assert.NoError(t, err)
		}(claimIDs[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := s.UserRoleClaimValues(ctx, userID, &tenantID)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(values), 1)
		}()
	}
	wg.Wait()

	values, err := s.RoleClaimValues(ctx, roleID)
	require.NoError(t, err)
	assert.Len(t, values, 1)
}
