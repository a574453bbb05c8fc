package auth

import (
	"context"
	"sort"
)

// ClaimService assigns catalog permissions to roles and, directly, to users
// inside a tenant. Every mutation runs in one transaction.
type ClaimService struct {
	store Store
}

// NewClaimService constructs a ClaimService.
func NewClaimService(store Store) *ClaimService {
	return &ClaimService{store: store}
}

// AssignToRole adds values to the role. Values already assigned are kept
// once. System catalog entries are refused with ErrForbidden; see
// GrantPlatformClaims.
func (s *ClaimService) AssignToRole(ctx context.Context, roleID string, values []string) error {
	if err := requireIDs("role_id", &roleID); err != nil {
		return err
	}
	values, err := requirePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		return assignRoleClaims(ctx, tx, roleID, values)
	})
}

// GrantPlatformClaims adds values to the role without the tenant restriction,
// so it can carry system permissions and hierarchy markers. It backs operator
// tooling only and has no HTTP route.
func (s *ClaimService) GrantPlatformClaims(ctx context.Context, roleID string, values []string) error {
	if err := requireIDs("role_id", &roleID); err != nil {
		return err
	}
	values, err := requirePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return internalError("get role", err)
		}
		claimIDs, err := resolveMasterClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		return internalError("add role claims", tx.AddRoleClaims(ctx, roleID, claimIDs))
	})
}

// RemoveFromRole removes values from the role. Values not assigned are ignored.
func (s *ClaimService) RemoveFromRole(ctx context.Context, roleID string, values []string) error {
	if err := requireIDs("role_id", &roleID); err != nil {
		return err
	}
	values, err := requirePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return internalError("get role", err)
		}
		claimIDs, err := resolveMasterClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		return internalError("remove role claims", tx.RemoveRoleClaims(ctx, roleID, claimIDs))
	})
}

// ReplaceRoleClaims sets the role's claims to exactly values. An empty list
// clears the role. Readers observe either the old or the new set.
func (s *ClaimService) ReplaceRoleClaims(ctx context.Context, roleID string, values []string) error {
	if err := requireIDs("role_id", &roleID); err != nil {
		return err
	}
	values, err := normalizePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return internalError("get role", err)
		}
		claimIDs, err := resolveTenantClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		if err := tx.ClearRoleClaims(ctx, roleID); err != nil {
			return internalError("clear role claims", err)
		}
		if len(claimIDs) == 0 {
			return nil
		}
		return internalError("add role claims", tx.AddRoleClaims(ctx, roleID, claimIDs))
	})
}

// AssignDirect grants values to the user inside tenantID. The user must be an
// active member of the tenant.
func (s *ClaimService) AssignDirect(ctx context.Context, userID, tenantID string, values []string) error {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return err
	}
	values, err := requirePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if err := requireActiveMembership(ctx, tx, userID, tenantID); err != nil {
			return err
		}
		claimIDs, err := resolveTenantClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		return internalError("add user claims", tx.AddUserClaims(ctx, userID, tenantID, claimIDs))
	})
}

// RemoveDirect revokes values granted directly to the user inside tenantID.
func (s *ClaimService) RemoveDirect(ctx context.Context, userID, tenantID string, values []string) error {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return err
	}
	values, err := requirePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		claimIDs, err := resolveMasterClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		return internalError("remove user claims", tx.RemoveUserClaims(ctx, userID, tenantID, claimIDs))
	})
}

// ReplaceDirect sets the user's direct claims inside tenantID to exactly
// values. An empty list clears them.
func (s *ClaimService) ReplaceDirect(ctx context.Context, userID, tenantID string, values []string) error {
	if err := requireIDs("user_id and tenant_id", &userID, &tenantID); err != nil {
		return err
	}
	values, err := normalizePermissions(values)
	if err != nil {
		return err
	}
	return s.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if len(values) > 0 {
			if err := requireActiveMembership(ctx, tx, userID, tenantID); err != nil {
				return err
			}
		}
		claimIDs, err := resolveTenantClaims(ctx, tx, values)
		if err != nil {
			return err
		}
		if err := tx.ClearUserClaims(ctx, userID, tenantID); err != nil {
			return internalError("clear user claims", err)
		}
		if len(claimIDs) == 0 {
			return nil
		}
		return internalError("add user claims", tx.AddUserClaims(ctx, userID, tenantID, claimIDs))
	})
}

// ClaimsForRole returns the role's claim values, sorted.
func (s *ClaimService) ClaimsForRole(ctx context.Context, roleID string) ([]string, error) {
	if err := requireIDs("role_id", &roleID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, internalError("get role", err)
	}
	values, err := s.store.RoleClaimValues(ctx, roleID)
	if err != nil {
		return nil, internalError("role claims", err)
	}
	return sortedUnique(values), nil
}

// ClaimsForUserRoles returns claim values reachable through the user's roles
// inside tenantID, or across every tenant when tenantID is nil.
func (s *ClaimService) ClaimsForUserRoles(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	if err := requireIDs("user_id", &userID); err != nil {
		return nil, err
	}
	values, err := s.store.UserRoleClaimValues(ctx, userID, tenantID)
	if err != nil {
		return nil, internalError("user role claims", err)
	}
	return sortedUnique(values), nil
}

// DirectClaims returns the user's direct claim values inside tenantID, or
// across every tenant when tenantID is nil.
func (s *ClaimService) DirectClaims(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	if err := requireIDs("user_id", &userID); err != nil {
		return nil, err
	}
	values, err := s.store.UserDirectClaimValues(ctx, userID, tenantID)
	if err != nil {
		return nil, internalError("direct claims", err)
	}
	return sortedUnique(values), nil
}

func assignRoleClaims(ctx context.Context, tx Repository, roleID string, values []string) error {
	if _, err := tx.GetRole(ctx, roleID); err != nil {
		return internalError("get role", err)
	}
	claimIDs, err := resolveTenantClaims(ctx, tx, values)
	if err != nil {
		return err
	}
	if len(claimIDs) == 0 {
		return nil
	}
	return internalError("add role claims", tx.AddRoleClaims(ctx, roleID, claimIDs))
}

func requireActiveMembership(ctx context.Context, repo MembershipRepository, userID, tenantID string) error {
	m, err := repo.GetMembership(ctx, userID, tenantID)
	if err != nil {
		return internalError("get membership", err)
	}
	if !m.IsActive {
		return notFoundf("membership of user %s in tenant %s is not active", userID, tenantID)
	}
	return nil
}

func requirePermissions(values []string) ([]string, error) {
	values, err := normalizePermissions(values)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, invalidInputf("at least one permission is required")
	}
	return values, nil
}

func sortedUnique(values []string) []string {
	out := dedupeStrings(values)
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out
}
