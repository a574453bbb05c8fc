package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

func TestInviteAcceptRemove(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	inviter := f.user("admin@example.com")
	user := f.user("u@example.com")

	m, err := f.svc.Memberships.Invite(f.ctx, tenant, user, inviter)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	assert.True(t, m.Pending())
	assert.Equal(t, inviter, m.InvitedBy)

	m, err = f.svc.Memberships.Accept(f.ctx, user, tenant)
	require.NoError(t, err)
	assert.True(t, m.IsActive)

	again, err := f.svc.Memberships.Accept(f.ctx, user, tenant)
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID)

	_, err = f.svc.Memberships.Invite(f.ctx, tenant, user, inviter)
	assert.ErrorIs(t, err, auth.ErrConflict)

	f.grant(user, f.role(tenant, "R", auth.PermUsersView))
	require.NoError(t, f.svc.Claims.AssignDirect(f.ctx, user, tenant, []string{auth.PermAuditView}))

	require.NoError(t, f.svc.Memberships.Remove(f.ctx, user, tenant))
	m, err = f.svc.Memberships.Get(f.ctx, user, tenant)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	assert.False(t, m.Pending())
	assert.NotNil(t, m.LeftAt)

	eff, err := f.svc.Resolver.EffectivePermissions(f.ctx, user, tenant)
	require.NoError(t, err)
	assert.Empty(t, eff)

	_, err = f.store.GetUser(f.ctx, user)
	assert.NoError(t, err)

	_, err = f.svc.Memberships.Accept(f.ctx, user, tenant)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, f.svc.Memberships.Remove(f.ctx, user, tenant), auth.ErrNotFound)

	m, err = f.svc.Memberships.Invite(f.ctx, tenant, user, inviter)
	require.NoError(t, err)
	assert.True(t, m.Pending())
}

func TestInviteUnknownParties(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	user := f.user("u@example.com")

	_, err := f.svc.Memberships.Invite(f.ctx, ids.New(), user, "")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = f.svc.Memberships.Invite(f.ctx, tenant, ids.New(), "")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = f.svc.Memberships.Invite(f.ctx, "", user, "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.svc.Memberships.Accept(f.ctx, user, tenant)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRemovePendingInvite(t *testing.T) {
	f := newFixture(t)
	tenant := f.tenant("acme")
	user := f.user("u@example.com")
	_, err := f.svc.Memberships.Invite(f.ctx, tenant, user, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Memberships.Remove(f.ctx, user, tenant))
	_, err = f.svc.Memberships.Accept(f.ctx, user, tenant)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
