package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LoginRequest carries credentials and the tenant the caller wants to act in.
type LoginRequest struct {
	Email    string
	Password string
	TenantID string
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Permissions []string  `json:"permissions"`
}

// SessionService authenticates users and issues tenant-scoped tokens.
type SessionService struct {
	users       UserRepository
	memberships MembershipRepository
	resolver    *Resolver
	tokens      *TokenIssuer
	now         func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(store Store, resolver *Resolver, tokens *TokenIssuer) (*SessionService, error) {
	if store == nil || resolver == nil || tokens == nil {
		return nil, errors.New("store, resolver and token issuer are required")
	}
	return &SessionService{users: store, memberships: store, resolver: resolver, tokens: tokens, now: time.Now}, nil
}

// Login verifies the credentials and issues a token scoped to req.TenantID.
// The user needs an active membership in the tenant unless they hold a
// hierarchy marker. Every credential failure is reported as ErrUnauthorized.
func (s *SessionService) Login(ctx context.Context, req LoginRequest) (Session, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	tenantID := strings.TrimSpace(req.TenantID)
	if email == "" || req.Password == "" || tenantID == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, internalError("get user", err)
	}
	if user.LockedOut(s.now()) || !VerifyPassword(req.Password, user.PasswordHash) {
		return Session{}, ErrUnauthorized
	}

	m, err := s.memberships.GetMembership(ctx, user.ID, tenantID)
	switch {
	case err == nil && m.IsActive:
	case err == nil || errors.Is(err, ErrNotFound):
		privileged, err := s.resolver.HasBypass(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
		if !privileged {
			return Session{}, ErrUnauthorized
		}
	default:
		return Session{}, internalError("get membership", err)
	}

	perms, err := s.resolver.EffectivePermissions(ctx, user.ID, tenantID)
	if err != nil {
		return Session{}, err
	}
	values := PermissionValues(perms)
	token, exp, err := s.tokens.IssueToken(user.ID, tenantID, values)
	if err != nil {
		return Session{}, internalError("issue token", err)
	}
	return Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		UserID:      user.ID,
		TenantID:    tenantID,
		Permissions: values,
	}, nil
}
