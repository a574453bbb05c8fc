package auth

import (
	"context"
	"time"
)

// TenantRepository persists tenants.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tenant Tenant) (Tenant, error)
	GetTenant(ctx context.Context, id string) (Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
}

// UserRepository persists global user identities.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// MembershipRepository persists user/tenant memberships.
type MembershipRepository interface {
	// UpsertMembership writes the single membership row for (UserID, TenantID).
	UpsertMembership(ctx context.Context, m UserTenant) (UserTenant, error)
	GetMembership(ctx context.Context, userID, tenantID string) (UserTenant, error)
	DeactivateMembership(ctx context.Context, userID, tenantID string, leftAt time.Time) error
	// DeleteUserGrants removes the user's roles and direct claims inside tenantID.
	DeleteUserGrants(ctx context.Context, userID, tenantID string) error
}

// RoleRepository persists roles and role assignments.
type RoleRepository interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	// DeleteRole removes the role together with its claims and assignments.
	DeleteRole(ctx context.Context, id string) error
	AssignUserRole(ctx context.Context, ur UserRole) (UserRole, error)
	RemoveUserRole(ctx context.Context, userID, roleID string) error
	ListUserRoles(ctx context.Context, userID, tenantID string) ([]Role, error)
}

// CatalogRepository persists master claims.
type CatalogRepository interface {
	UpsertMasterClaims(ctx context.Context, claims []MasterClaim) error
	ListMasterClaims(ctx context.Context) ([]MasterClaim, error)
	// MasterClaimsByValue returns the catalog entries for values; unknown values
	// are absent from the result.
	MasterClaimsByValue(ctx context.Context, values []string) ([]MasterClaim, error)
}

// ClaimRepository persists role and user claim rows. Add operations are
// set-inserts keyed by (owner, master claim).
type ClaimRepository interface {
	AddRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error
	RemoveRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error
	ClearRoleClaims(ctx context.Context, roleID string) error
	AddUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error
	RemoveUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error
	ClearUserClaims(ctx context.Context, userID, tenantID string) error

	RoleClaimValues(ctx context.Context, roleID string) ([]string, error)
	// UserRoleClaimValues returns claim values reachable through the user's
	// roles; a nil tenantID spans every tenant.
	UserRoleClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error)
	// UserDirectClaimValues returns the user's direct claim values; a nil
	// tenantID spans every tenant.
	UserDirectClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error)
}

// Repository is the full persistence port used by the auth services.
type Repository interface {
	TenantRepository
	UserRepository
	MembershipRepository
	RoleRepository
	CatalogRepository
	ClaimRepository
}

// UnitOfWork runs fn inside one read-committed transaction. The transaction
// commits when fn returns nil and is rolled back before WithTransaction
// returns on error, panic or context cancellation.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// Store is a Repository that can also open transactions.
type Store interface {
	Repository
	UnitOfWork
}
