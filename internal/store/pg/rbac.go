package pg

import (
	"context"
	"database/sql"
	"time"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

const roleColumns = `id, tenant_id, name, description, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (auth.Role, error) {
	var (
		role    auth.Role
		desc    sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&role.ID, &role.TenantID, &role.Name, &desc, &role.CreatedAt, &updated); err != nil {
		return auth.Role{}, err
	}
	role.Description = desc.String
	role.UpdatedAt = timePtr(updated)
	return role, nil
}

func scanRoles(rows *sql.Rows) ([]auth.Role, error) {
	defer rows.Close()
	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r queries) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into roles (id, tenant_id, name, description, created_at)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.TenantID, role.Name, nullIfEmpty(role.Description), role.CreatedAt)
	if err != nil {
		return auth.Role{}, mapError(err, "create role")
	}
	return role, nil
}

func (r queries) GetRole(ctx context.Context, id string) (auth.Role, error) {
	role, err := scanRole(r.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
	if err != nil {
		return auth.Role{}, mapError(err, "role "+id)
	}
	return role, nil
}

func (r queries) ListRoles(ctx context.Context, tenantID string) ([]auth.Role, error) {
	rows, err := r.q.QueryContext(ctx, `
		select `+roleColumns+`
		from roles
		where tenant_id = $1
		order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

// DeleteRole relies on the on-delete-cascade foreign keys of role_claims and
// user_roles.
func (r queries) DeleteRole(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapError(err, "delete role")
	}
	return requireAffected(res, "role "+id)
}

func (r queries) AssignUserRole(ctx context.Context, ur auth.UserRole) (auth.UserRole, error) {
	if ur.ID == "" {
		ur.ID = ids.New()
	}
	err := r.q.QueryRowContext(ctx, `
		insert into user_roles (id, user_id, role_id, tenant_id)
		select $1, $2, r.id, r.tenant_id from roles r where r.id = $3
		on conflict (user_id, role_id) do update set tenant_id = excluded.tenant_id
		returning id, tenant_id
	`, ur.ID, ur.UserID, ur.RoleID).Scan(&ur.ID, &ur.TenantID)
	if err != nil {
		return auth.UserRole{}, mapError(err, "assign role "+ur.RoleID)
	}
	return ur, nil
}

func (r queries) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	res, err := r.q.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res, "role assignment")
}

func (r queries) ListUserRoles(ctx context.Context, userID, tenantID string) ([]auth.Role, error) {
	rows, err := r.q.QueryContext(ctx, `
		select r.id, r.tenant_id, r.name, r.description, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1 and ur.tenant_id = $2
		order by r.name
	`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

const masterClaimColumns = `id, claim_type, claim_value, display_name, description, category,
	is_tenant_scoped, is_system_permission, created_at, updated_at`

func scanMasterClaim(row interface{ Scan(...any) error }) (auth.MasterClaim, error) {
	var (
		c       auth.MasterClaim
		desc    sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ClaimType, &c.ClaimValue, &c.DisplayName, &desc, &c.Category,
		&c.IsTenantScoped, &c.IsSystemPermission, &c.CreatedAt, &updated); err != nil {
		return auth.MasterClaim{}, err
	}
	c.Description = desc.String
	c.UpdatedAt = timePtr(updated)
	return c, nil
}

func (r queries) UpsertMasterClaims(ctx context.Context, claims []auth.MasterClaim) error {
	for _, c := range claims {
		if _, err := r.q.ExecContext(ctx, `
			insert into master_claims (id, claim_type, claim_value, display_name, description, category,
				is_tenant_scoped, is_system_permission, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			on conflict (claim_value) do update
			set display_name = excluded.display_name,
			    description = excluded.description,
			    category = excluded.category,
			    is_tenant_scoped = excluded.is_tenant_scoped,
			    is_system_permission = excluded.is_system_permission,
			    updated_at = now()
		`, c.ID, c.ClaimType, c.ClaimValue, c.DisplayName, nullIfEmpty(c.Description), c.Category,
			c.IsTenantScoped, c.IsSystemPermission, c.CreatedAt); err != nil {
			return mapError(err, "upsert master claim "+c.ClaimValue)
		}
	}
	return nil
}

func (r queries) ListMasterClaims(ctx context.Context) ([]auth.MasterClaim, error) {
	rows, err := r.q.QueryContext(ctx, `select `+masterClaimColumns+` from master_claims order by claim_value`)
	if err != nil {
		return nil, err
	}
	return collectMasterClaims(rows)
}

// MasterClaimsByValue fetches every requested entry in one round trip; values
// missing from the catalog are simply absent from the result.
func (r queries) MasterClaimsByValue(ctx context.Context, values []string) ([]auth.MasterClaim, error) {
	if len(values) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `select `+masterClaimColumns+` from master_claims
		where claim_value = any($1) order by claim_value`, values)
	if err != nil {
		return nil, err
	}
	return collectMasterClaims(rows)
}

func collectMasterClaims(rows *sql.Rows) ([]auth.MasterClaim, error) {
	defer rows.Close()
	var out []auth.MasterClaim
	for rows.Next() {
		c, err := scanMasterClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r queries) AddRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error {
	for _, id := range masterClaimIDs {
		if _, err := r.q.ExecContext(ctx, `
			insert into role_claims (id, role_id, master_claim_id)
			values ($1, $2, $3)
			on conflict (role_id, master_claim_id) do nothing
		`, ids.New(), roleID, id); err != nil {
			return mapError(err, "add role claim")
		}
	}
	return nil
}

func (r queries) RemoveRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error {
	for _, id := range masterClaimIDs {
		if _, err := r.q.ExecContext(ctx, `
			delete from role_claims where role_id = $1 and master_claim_id = $2
		`, roleID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r queries) ClearRoleClaims(ctx context.Context, roleID string) error {
	_, err := r.q.ExecContext(ctx, `delete from role_claims where role_id = $1`, roleID)
	return err
}

func (r queries) AddUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error {
	for _, id := range masterClaimIDs {
		if _, err := r.q.ExecContext(ctx, `
			insert into user_claims (id, user_id, tenant_id, master_claim_id)
			values ($1, $2, $3, $4)
			on conflict (user_id, tenant_id, master_claim_id) do nothing
		`, ids.New(), userID, tenantID, id); err != nil {
			return mapError(err, "add user claim")
		}
	}
	return nil
}

func (r queries) RemoveUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error {
	for _, id := range masterClaimIDs {
		if _, err := r.q.ExecContext(ctx, `
			delete from user_claims where user_id = $1 and tenant_id = $2 and master_claim_id = $3
		`, userID, tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r queries) ClearUserClaims(ctx context.Context, userID, tenantID string) error {
	_, err := r.q.ExecContext(ctx, `delete from user_claims where user_id = $1 and tenant_id = $2`, userID, tenantID)
	return err
}

func (r queries) RoleClaimValues(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		select mc.claim_value
		from role_claims rc
		join master_claims mc on mc.id = rc.master_claim_id
		where rc.role_id = $1
		order by mc.claim_value
	`, roleID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r queries) UserRoleClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		select distinct mc.claim_value
		from user_roles ur
		join role_claims rc on rc.role_id = ur.role_id
		join master_claims mc on mc.id = rc.master_claim_id
		where ur.user_id = $1 and ($2::text is null or ur.tenant_id = $2)
		order by mc.claim_value
	`, userID, nullTenant(tenantID))
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r queries) UserDirectClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		select distinct mc.claim_value
		from user_claims uc
		join master_claims mc on mc.id = uc.master_claim_id
		where uc.user_id = $1 and ($2::text is null or uc.tenant_id = $2)
		order by mc.claim_value
	`, userID, nullTenant(tenantID))
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
