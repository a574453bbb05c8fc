package auth

import "time"

// Tenant is an isolated customer organization.
type Tenant struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	LogoURL      string     `json:"logo_url,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// User is a global identity that may belong to many tenants.
type User struct {
	ID                      string     `json:"id"`
	Email                   string     `json:"email"`
	FirstName               string     `json:"first_name"`
	LastName                string     `json:"last_name"`
	PasswordHash            string     `json:"-"`
	SecurityStamp           string     `json:"-"`
	IsEmailConfirmed        bool       `json:"is_email_confirmed"`
	IsGloballyLocked        bool       `json:"is_globally_locked"`
	GlobalLockoutEnd        *time.Time `json:"global_lockout_end,omitempty"`
	GlobalAccessFailedCount int        `json:"-"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               *time.Time `json:"updated_at,omitempty"`
}

// LockedOut reports whether the user is currently locked out globally.
func (u User) LockedOut(now time.Time) bool {
	if !u.IsGloballyLocked {
		return false
	}
	return u.GlobalLockoutEnd == nil || now.Before(*u.GlobalLockoutEnd)
}

// UserTenant is a user's membership in a tenant. An inactive membership is a
// pending invite when LeftAt is unset and a removed membership otherwise.
type UserTenant struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TenantID  string     `json:"tenant_id"`
	IsActive  bool       `json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	InvitedBy string     `json:"invited_by,omitempty"`
}

// Pending reports whether the membership is an invitation not yet accepted.
func (m UserTenant) Pending() bool {
	return !m.IsActive && m.LeftAt == nil
}

// Role is a named, tenant-scoped bundle of claims.
type Role struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ClaimTypePermission is the only claim type stored in the catalog.
const ClaimTypePermission = "permission"

// MasterClaim is the catalog definition of a permission.
type MasterClaim struct {
	ID                 string     `json:"id"`
	ClaimType          string     `json:"claim_type"`
	ClaimValue         string     `json:"claim_value"`
	DisplayName        string     `json:"display_name"`
	Description        string     `json:"description,omitempty"`
	Category           string     `json:"category"`
	IsTenantScoped     bool       `json:"is_tenant_scoped"`
	IsSystemPermission bool       `json:"is_system_permission"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// RoleClaim grants a permission to every member of a role.
type RoleClaim struct {
	ID            string `json:"id"`
	RoleID        string `json:"role_id"`
	MasterClaimID string `json:"master_claim_id"`
}

// UserClaim grants a permission directly to a user within one tenant.
type UserClaim struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	TenantID      string `json:"tenant_id"`
	MasterClaimID string `json:"master_claim_id"`
}

// UserRole assigns a role to a user within a tenant.
type UserRole struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id"`
	TenantID string `json:"tenant_id"`
}

// PermissionSource tells where an effective permission came from.
type PermissionSource string

const (
	SourceRole   PermissionSource = "role"
	SourceDirect PermissionSource = "direct"
)

// EffectivePermission is one (value, source) pair of a user's effective set.
type EffectivePermission struct {
	Value  string           `json:"value"`
	Source PermissionSource `json:"source"`
}
