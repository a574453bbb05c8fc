package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

const tenantColumns = `id, name, slug, logo_url, contact_email, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (auth.Tenant, error) {
	var (
		t       auth.Tenant
		logo    sql.NullString
		contact sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &logo, &contact, &t.CreatedAt, &updated); err != nil {
		return auth.Tenant{}, err
	}
	t.LogoURL = logo.String
	t.ContactEmail = contact.String
	t.UpdatedAt = timePtr(updated)
	return t, nil
}

func (r queries) CreateTenant(ctx context.Context, t auth.Tenant) (auth.Tenant, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into tenants (id, name, slug, logo_url, contact_email, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Slug, nullIfEmpty(t.LogoURL), nullIfEmpty(t.ContactEmail), t.CreatedAt)
	if err != nil {
		return auth.Tenant{}, mapError(err, "create tenant")
	}
	return t, nil
}

func (r queries) GetTenant(ctx context.Context, id string) (auth.Tenant, error) {
	t, err := scanTenant(r.q.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id = $1`, id))
	if err != nil {
		return auth.Tenant{}, mapError(err, "tenant "+id)
	}
	return t, nil
}

func (r queries) GetTenantBySlug(ctx context.Context, slug string) (auth.Tenant, error) {
	t, err := scanTenant(r.q.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where slug = $1`, slug))
	if err != nil {
		return auth.Tenant{}, mapError(err, fmt.Sprintf("tenant slug %q", slug))
	}
	return t, nil
}

const userColumns = `id, email, first_name, last_name, password_hash, security_stamp,
	is_email_confirmed, is_globally_locked, global_lockout_end, global_access_failed_count,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (auth.User, error) {
	var (
		u       auth.User
		lockEnd sql.NullTime
		updated sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.SecurityStamp,
		&u.IsEmailConfirmed, &u.IsGloballyLocked, &lockEnd, &u.GlobalAccessFailedCount,
		&u.CreatedAt, &updated); err != nil {
		return auth.User{}, err
	}
	u.GlobalLockoutEnd = timePtr(lockEnd)
	u.UpdatedAt = timePtr(updated)
	return u, nil
}

func (r queries) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into users (id, email, first_name, last_name, password_hash, security_stamp,
			is_email_confirmed, is_globally_locked, global_lockout_end, global_access_failed_count, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.SecurityStamp,
		u.IsEmailConfirmed, u.IsGloballyLocked, nullTime(u.GlobalLockoutEnd), u.GlobalAccessFailedCount, u.CreatedAt)
	if err != nil {
		return auth.User{}, mapError(err, "create user")
	}
	return u, nil
}

func (r queries) GetUser(ctx context.Context, id string) (auth.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if err != nil {
		return auth.User{}, mapError(err, "user "+id)
	}
	return u, nil
}

func (r queries) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where email = lower($1)`, email))
	if err != nil {
		return auth.User{}, mapError(err, "user by email")
	}
	return u, nil
}

func (r queries) UpsertMembership(ctx context.Context, m auth.UserTenant) (auth.UserTenant, error) {
	if m.ID == "" {
		m.ID = ids.New()
	}
	if m.IsActive {
		m.LeftAt = nil
	}
	err := r.q.QueryRowContext(ctx, `
		insert into user_tenants (id, user_id, tenant_id, is_active, joined_at, left_at, invited_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (user_id, tenant_id) do update
		set is_active = excluded.is_active,
		    joined_at = excluded.joined_at,
		    left_at = excluded.left_at,
		    invited_by = excluded.invited_by
		returning id
	`, m.ID, m.UserID, m.TenantID, m.IsActive, m.JoinedAt, nullTime(m.LeftAt), nullIfEmpty(m.InvitedBy)).Scan(&m.ID)
	if err != nil {
		return auth.UserTenant{}, mapError(err, "upsert membership")
	}
	return m, nil
}

func (r queries) GetMembership(ctx context.Context, userID, tenantID string) (auth.UserTenant, error) {
	var (
		m       auth.UserTenant
		leftAt  sql.NullTime
		invited sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		select id, user_id, tenant_id, is_active, joined_at, left_at, invited_by
		from user_tenants
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID).Scan(&m.ID, &m.UserID, &m.TenantID, &m.IsActive, &m.JoinedAt, &leftAt, &invited)
	if err != nil {
		return auth.UserTenant{}, mapError(err, "membership")
	}
	m.LeftAt = timePtr(leftAt)
	m.InvitedBy = invited.String
	return m, nil
}

func (r queries) DeactivateMembership(ctx context.Context, userID, tenantID string, leftAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		update user_tenants set is_active = false, left_at = $3
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID, leftAt)
	if err != nil {
		return mapError(err, "deactivate membership")
	}
	return requireAffected(res, "membership")
}

func (r queries) DeleteUserGrants(ctx context.Context, userID, tenantID string) error {
	if _, err := r.q.ExecContext(ctx, `delete from user_roles where user_id = $1 and tenant_id = $2`, userID, tenantID); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `delete from user_claims where user_id = $1 and tenant_id = $2`, userID, tenantID); err != nil {
		return err
	}
	return nil
}
