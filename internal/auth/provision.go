package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.dev/internal/ids"
)

// AdminRoleName is the name of the role created for a tenant's first admin.
const AdminRoleName = "TenantAdmin"

// ProvisionRequest describes a new tenant and its first administrator.
type ProvisionRequest struct {
	TenantName        string
	Slug              string
	ContactEmail      string
	AdminEmail        string
	AdminFirstName    string
	AdminLastName     string
	AdminPasswordHash string
}

// ProvisionResult identifies the rows created by Provision.
type ProvisionResult struct {
	TenantID    string   `json:"tenant_id"`
	RoleID      string   `json:"role_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// Provisioner creates tenants together with their admin role, admin user,
// membership and permission grants.
type Provisioner struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(store Store, opts ...Option) (*Provisioner, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	o := buildOptions(opts)
	return &Provisioner{store: store, logger: o.logger, now: o.now}, nil
}

func (r *ProvisionRequest) normalize() error {
	r.TenantName = strings.TrimSpace(r.TenantName)
	r.Slug = strings.TrimSpace(r.Slug)
	r.ContactEmail = strings.TrimSpace(strings.ToLower(r.ContactEmail))
	r.AdminEmail = strings.TrimSpace(strings.ToLower(r.AdminEmail))
	r.AdminFirstName = strings.TrimSpace(r.AdminFirstName)
	r.AdminLastName = strings.TrimSpace(r.AdminLastName)
	switch {
	case r.TenantName == "":
		return invalidInputf("tenant name is required")
	case r.Slug == "" || strings.ContainsAny(r.Slug, " \t\r\n/"):
		return invalidInputf("valid slug is required")
	case r.ContactEmail != "" && !strings.Contains(r.ContactEmail, "@"):
		return invalidInputf("contact email is malformed")
	case r.AdminEmail == "" || !strings.Contains(r.AdminEmail, "@"):
		return invalidInputf("valid admin email is required")
	case r.AdminPasswordHash == "":
		return invalidInputf("admin password hash is required")
	}
	return nil
}

// Provision creates the tenant and its administrator atomically. A taken slug
// or admin email yields ErrConflict and nothing is persisted; any other
// failure yields ErrInternal, also with nothing persisted.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	if err := req.normalize(); err != nil {
		return ProvisionResult{}, err
	}
	log := p.logger.With(zap.String("slug", req.Slug))

	// Advisory only; the unique constraint on slug decides under concurrency.
	if _, err := p.store.GetTenantBySlug(ctx, req.Slug); err == nil {
		return ProvisionResult{}, conflictf("tenant slug %q already exists", req.Slug)
	} else if !errors.Is(err, ErrNotFound) {
		return ProvisionResult{}, internalError("check slug", err)
	}

	now := p.now().UTC()
	tenant := Tenant{
		ID:           ids.New(),
		Name:         req.TenantName,
		Slug:         req.Slug,
		ContactEmail: req.ContactEmail,
		CreatedAt:    now,
	}
	role := Role{
		ID:          ids.New(),
		TenantID:    tenant.ID,
		Name:        AdminRoleName,
		Description: TemplateFor(TemplateTenantAdmin).Description,
		CreatedAt:   now,
	}
	user := User{
		ID:            ids.New(),
		Email:         req.AdminEmail,
		FirstName:     req.AdminFirstName,
		LastName:      req.AdminLastName,
		PasswordHash:  req.AdminPasswordHash,
		SecurityStamp: uuid.NewString(),
		CreatedAt:     now,
	}
	perms := DefaultAdminPermissions()

	err := p.store.WithTransaction(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.CreateTenant(ctx, tenant); err != nil {
			return internalError("create tenant", err)
		}
		if _, err := tx.CreateRole(ctx, role); err != nil {
			return internalError("create admin role", err)
		}
		if _, err := tx.CreateUser(ctx, user); err != nil {
			return internalError("create admin user", err)
		}
		if _, err := tx.UpsertMembership(ctx, UserTenant{
			ID:       ids.New(),
			UserID:   user.ID,
			TenantID: tenant.ID,
			IsActive: true,
			JoinedAt: now,
		}); err != nil {
			return internalError("create membership", err)
		}
		if _, err := tx.AssignUserRole(ctx, UserRole{
			ID:       ids.New(),
			UserID:   user.ID,
			RoleID:   role.ID,
			TenantID: tenant.ID,
		}); err != nil {
			return internalError("assign admin role", err)
		}
		return assignRoleClaims(ctx, tx, role.ID, perms)
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			// Validation and NotFound cannot legitimately occur after normalize;
			// they indicate a broken store or catalog. The cause stays matchable.
			if !errors.Is(err, ErrInternal) {
				err = fmt.Errorf("%w: provision: %w", ErrInternal, err)
			}
			log.Error("tenant provisioning failed", zap.Error(err))
		} else {
			log.Info("tenant provisioning conflict", zap.Error(err))
		}
		return ProvisionResult{}, err
	}

	log.Info("tenant provisioned",
		zap.String("tenant_id", tenant.ID),
		zap.String("admin_user_id", user.ID),
		zap.Int("permissions", len(perms)),
	)
	return ProvisionResult{
		TenantID:    tenant.ID,
		RoleID:      role.ID,
		UserID:      user.ID,
		Permissions: perms,
	}, nil
}
