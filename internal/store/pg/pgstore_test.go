package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

var (
	roleCols        = []string{"id", "tenant_id", "name", "description", "created_at", "updated_at"}
	masterClaimCols = []string{"id", "claim_type", "claim_value", "display_name", "description", "category",
		"is_tenant_scoped", "is_system_permission", "created_at", "updated_at"}
	tenantCols = []string{"id", "name", "slug", "logo_url", "contact_email", "created_at", "updated_at"}
)

// arrayConverter lets text[] parameters through to the mock as pgx would.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

// expectMasterClaims expects one catalog lookup for values and returns the
// claim ids keyed by value.
func expectMasterClaims(mock sqlmock.Sqlmock, values ...string) map[string]string {
	out := make(map[string]string, len(values))
	rows := sqlmock.NewRows(masterClaimCols)
	for _, v := range values {
		id := ids.New()
		out[v] = id
		system := auth.ScopeOf(v) != auth.ScopeTenant
		rows.AddRow(id, auth.ClaimTypePermission, v, v, nil, "Test", !system, system, time.Now(), nil)
	}
	mock.ExpectQuery("from master_claims where claim_value = any\\(\\$1\\)").
		WithArgs(values).
		WillReturnRows(rows)
	return out
}

func TestWithTransactionCommits(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("delete from role_claims where role_id = \\$1").WithArgs("r-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx auth.Repository) error {
		return tx.ClearRoleClaims(ctx, "r-1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBack(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTransaction(context.Background(), func(context.Context, auth.Repository) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnCancel(t *testing.T) {
	s, mock := newMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTransaction(ctx, func(context.Context, auth.Repository) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRoleClaimsRunsInOneTransaction(t *testing.T) {
	s, mock := newMock(t)
	roleID := ids.New()
	values := []string{auth.PermUsersView, auth.PermAuditView}

	mock.ExpectBegin()
	mock.ExpectQuery("from roles where id = \\$1").
		WithArgs(roleID).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow(roleID, ids.New(), "R", nil, time.Now(), nil))
	claimIDs := expectMasterClaims(mock, values...)
	mock.ExpectExec("delete from role_claims where role_id = \\$1").WithArgs(roleID).WillReturnResult(sqlmock.NewResult(0, 5))
	for _, v := range values {
		mock.ExpectExec("insert into role_claims").
			WithArgs(sqlmock.AnyArg(), roleID, claimIDs[v]).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	claims := auth.NewClaimService(s)
	require.NoError(t, claims.ReplaceRoleClaims(context.Background(), roleID, values))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRoleClaimsUnknownValueRollsBack(t *testing.T) {
	s, mock := newMock(t)
	roleID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery("from roles where id = \\$1").
		WithArgs(roleID).
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow(roleID, ids.New(), "R", nil, time.Now(), nil))
	mock.ExpectQuery("from master_claims where claim_value = any\\(\\$1\\)").
		WithArgs([]string{"made.up"}).
		WillReturnRows(sqlmock.NewRows(masterClaimCols))
	mock.ExpectRollback()

	err := auth.NewClaimService(s).ReplaceRoleClaims(context.Background(), roleID, []string{"made.up"})
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func provisionRequest() auth.ProvisionRequest {
	return auth.ProvisionRequest{
		TenantName:        "Acme",
		Slug:              "acme",
		AdminEmail:        "admin@acme.com",
		AdminFirstName:    "A",
		AdminLastName:     "B",
		AdminPasswordHash: "hash",
	}
}

func TestProvisionRollsBackOnDuplicateEmail(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("from tenants where slug = \\$1").WithArgs("acme").WillReturnRows(sqlmock.NewRows(tenantCols))
	mock.ExpectBegin()
	mock.ExpectExec("insert into tenants").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_key"})
	mock.ExpectRollback()

	p, err := auth.NewProvisioner(s)
	require.NoError(t, err)
	_, err = p.Provision(context.Background(), provisionRequest())
	require.ErrorIs(t, err, auth.ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionCommits(t *testing.T) {
	s, mock := newMock(t)
	perms := auth.DefaultAdminPermissions()

	mock.ExpectQuery("from tenants where slug = \\$1").WithArgs("acme").WillReturnRows(sqlmock.NewRows(tenantCols))
	mock.ExpectBegin()
	mock.ExpectExec("insert into tenants").
		WithArgs(sqlmock.AnyArg(), "Acme", "acme", sql.NullString{}, sql.NullString{}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("insert into user_tenants").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(ids.New()))
	mock.ExpectQuery("insert into user_roles").WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}).AddRow(ids.New(), ids.New()))
	mock.ExpectQuery("from roles where id = \\$1").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow(ids.New(), ids.New(), auth.AdminRoleName, nil, time.Now(), nil))
	expectMasterClaims(mock, perms...)
	for range perms {
		mock.ExpectExec("insert into role_claims").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	p, err := auth.NewProvisioner(s)
	require.NoError(t, err)
	res, err := p.Provision(context.Background(), provisionRequest())
	require.NoError(t, err)
	assert.True(t, ids.Valid(res.TenantID))
	assert.Equal(t, perms, res.Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignUserRoleMissingRole(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into user_roles").
		WithArgs(sqlmock.AnyArg(), "u-1", "r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}))

	_, err := s.AssignUserRole(context.Background(), auth.UserRole{UserID: "u-1", RoleID: "r-1"})
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRoleNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from roles where id = \\$1").WithArgs("r-1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.DeleteRole(context.Background(), "r-1"), auth.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserClaimValuesTenantFilter(t *testing.T) {
	s, mock := newMock(t)
	tenant := "t-1"
	mock.ExpectQuery("from user_claims uc").
		WithArgs("u-1", sql.NullString{String: tenant, Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"claim_value"}).AddRow("audit.view").AddRow("users.view"))
	mock.ExpectQuery("from user_roles ur").
		WithArgs("u-1", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"claim_value"}).AddRow("system.admin"))

	direct, err := s.UserDirectClaimValues(context.Background(), "u-1", &tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit.view", "users.view"}, direct)

	viaRoles, err := s.UserRoleClaimValues(context.Background(), "u-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"system.admin"}, viaRoles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	other := errors.New("other")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, auth.ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgErrUniqueViolation}, auth.ErrConflict},
		{"wrapped unique", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgErrUniqueViolation}), auth.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: pgErrForeignKeyViolation}, auth.ErrNotFound},
		{"other pg", &pgconn.PgError{Code: "40001"}, nil},
		{"other", other, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "thing")
			if tt.want == nil {
				assert.ErrorIs(t, got, tt.err)
				assert.NotErrorIs(t, got, auth.ErrConflict)
				assert.NotErrorIs(t, got, auth.ErrNotFound)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
	assert.NoError(t, mapError(nil, "thing"))
}
