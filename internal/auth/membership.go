package auth

import (
	"context"
	"errors"
	"time"

	"tessera.dev/internal/ids"
)

// MembershipService manages user/tenant memberships.
type MembershipService struct {
	store Store
	now   func() time.Time
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(store Store) *MembershipService {
	return &MembershipService{store: store, now: time.Now}
}

// Get returns the membership of userID in tenantID.
func (s *MembershipService) Get(ctx context.Context, userID, tenantID string) (UserTenant, error) {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return UserTenant{}, err
	}
	m, err := s.store.GetMembership(ctx, userID, tenantID)
	if err != nil {
		return UserTenant{}, internalError("get membership", err)
	}
	return m, nil
}

// Invite records a pending membership for an existing user. Inviting a user who
// is already an active member is a conflict; a removed member can be
// re-invited.
func (s *MembershipService) Invite(ctx context.Context, tenantID, userID, invitedBy string) (UserTenant, error) {
	if err := requireIDs("tenant_id and user_id", &tenantID, &userID); err != nil {
		return UserTenant{}, err
	}
	var out UserTenant
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetTenant(ctx, tenantID); err != nil {
			return internalError("get tenant", err)
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return internalError("get user", err)
		}
		existing, err := tx.GetMembership(ctx, userID, tenantID)
		switch {
		case err == nil && existing.IsActive:
			return conflictf("user %s is already a member of tenant %s", userID, tenantID)
		case err != nil && !errors.Is(err, ErrNotFound):
			return internalError("get membership", err)
		}
		id := existing.ID
		if id == "" {
			id = ids.New()
		}
		m, err := tx.UpsertMembership(ctx, UserTenant{
			ID:        id,
			UserID:    userID,
			TenantID:  tenantID,
			IsActive:  false,
			JoinedAt:  s.now().UTC(),
			InvitedBy: invitedBy,
		})
		if err != nil {
			return internalError("upsert membership", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return UserTenant{}, err
	}
	return out, nil
}

// Accept activates a pending invitation. Accepting an active membership
// returns it unchanged; a removed membership cannot be accepted.
func (s *MembershipService) Accept(ctx context.Context, userID, tenantID string) (UserTenant, error) {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return UserTenant{}, err
	}
	var out UserTenant
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		m, err := tx.GetMembership(ctx, userID, tenantID)
		if err != nil {
			return internalError("get membership", err)
		}
		if m.IsActive {
			out = m
			return nil
		}
		if !m.Pending() {
			return notFoundf("no pending invitation for user %s in tenant %s", userID, tenantID)
		}
		m.IsActive = true
		m.JoinedAt = s.now().UTC()
		m, err = tx.UpsertMembership(ctx, m)
		if err != nil {
			return internalError("upsert membership", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return UserTenant{}, err
	}
	return out, nil
}

// Remove ends the membership and deletes the user's roles and direct claims
// inside the tenant. The global user row is untouched.
func (s *MembershipService) Remove(ctx context.Context, userID, tenantID string) error {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		m, err := tx.GetMembership(ctx, userID, tenantID)
		if err != nil {
			return internalError("get membership", err)
		}
		if !m.IsActive && !m.Pending() {
			return notFoundf("user %s is not a member of tenant %s", userID, tenantID)
		}
		if err := tx.DeleteUserGrants(ctx, userID, tenantID); err != nil {
			return internalError("delete user grants", err)
		}
		return internalError("deactivate membership", tx.DeactivateMembership(ctx, userID, tenantID, s.now().UTC()))
	})
}
