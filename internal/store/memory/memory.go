// Package memory implements auth.Store in process memory. It mirrors the
// Postgres schema constraints (unique keys, foreign keys, cascades) and is used
// by tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/ids"
)

type state struct {
	tenants      map[string]auth.Tenant
	users        map[string]auth.User
	memberships  map[string]auth.UserTenant // userID|tenantID
	roles        map[string]auth.Role
	masterClaims map[string]auth.MasterClaim // id
	roleClaims   map[string]map[string]struct{} // roleID -> master claim ids
	userClaims   map[string]map[string]struct{} // userID|tenantID -> master claim ids
	userRoles    map[string]auth.UserRole      // userID|roleID
}

func newState() *state {
	return &state{
		tenants:      map[string]auth.Tenant{},
		users:        map[string]auth.User{},
		memberships:  map[string]auth.UserTenant{},
		roles:        map[string]auth.Role{},
		masterClaims: map[string]auth.MasterClaim{},
		roleClaims:   map[string]map[string]struct{}{},
		userClaims:   map[string]map[string]struct{}{},
		userRoles:    map[string]auth.UserRole{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.tenants {
		out.tenants[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.memberships {
		out.memberships[k] = v
	}
	for k, v := range s.roles {
		out.roles[k] = v
	}
	for k, v := range s.masterClaims {
		out.masterClaims[k] = v
	}
	for k, set := range s.roleClaims {
		out.roleClaims[k] = cloneSet(set)
	}
	for k, set := range s.userClaims {
		out.userClaims[k] = cloneSet(set)
	}
	for k, v := range s.userRoles {
		out.userRoles[k] = v
	}
	return out
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func pair(a, b string) string { return a + "|" + b }

// Store is an in-memory auth.Store. Writers are serialised; every write
// operates on a copy of the state that replaces the current one on commit, so
// readers never observe a partially applied transaction.
type Store struct {
	txMu sync.Mutex

	mu  sync.RWMutex
	cur *state

	// read-only access outside transactions
	repo
}

var _ auth.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	s := &Store{cur: newState()}
	s.repo = repo{
		read: func(ctx context.Context, fn func(*state) error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.mu.RLock()
			defer s.mu.RUnlock()
			return fn(s.cur)
		},
		write: func(ctx context.Context, fn func(*state) error) error {
			return s.commit(ctx, func(st *state) error { return fn(st) })
		},
	}
	return s
}

// WithTransaction runs fn against a private copy of the state and publishes
// the copy only when fn succeeds and ctx is still live.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx auth.Repository) error) error {
	return s.commit(ctx, func(st *state) error {
		tx := repo{
			read:  func(ctx context.Context, op func(*state) error) error { return guard(ctx, st, op) },
			write: func(ctx context.Context, op func(*state) error) error { return guard(ctx, st, op) },
		}
		return fn(ctx, tx)
	})
}

func guard(ctx context.Context, st *state, op func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return op(st)
}

func (s *Store) commit(ctx context.Context, fn func(*state) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	next := s.cur.clone()
	s.mu.RUnlock()

	if err := fn(next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

// repo implements auth.Repository over a state accessor.
type repo struct {
	read  func(ctx context.Context, fn func(*state) error) error
	write func(ctx context.Context, fn func(*state) error) error
}

var _ auth.Repository = repo{}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", auth.ErrNotFound, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", auth.ErrConflict, fmt.Sprintf(format, args...))
}

// Tenants

func (r repo) CreateTenant(ctx context.Context, t auth.Tenant) (auth.Tenant, error) {
	err := r.write(ctx, func(st *state) error {
		if _, ok := st.tenants[t.ID]; ok {
			return conflict("tenant %s exists", t.ID)
		}
		for _, existing := range st.tenants {
			if existing.Slug == t.Slug {
				return conflict("tenant slug %q exists", t.Slug)
			}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		st.tenants[t.ID] = t
		return nil
	})
	if err != nil {
		return auth.Tenant{}, err
	}
	return t, nil
}

func (r repo) GetTenant(ctx context.Context, id string) (auth.Tenant, error) {
	var out auth.Tenant
	err := r.read(ctx, func(st *state) error {
		t, ok := st.tenants[id]
		if !ok {
			return notFound("tenant %s", id)
		}
		out = t
		return nil
	})
	return out, err
}

func (r repo) GetTenantBySlug(ctx context.Context, slug string) (auth.Tenant, error) {
	var out auth.Tenant
	err := r.read(ctx, func(st *state) error {
		for _, t := range st.tenants {
			if t.Slug == slug {
				out = t
				return nil
			}
		}
		return notFound("tenant slug %q", slug)
	})
	return out, err
}

// Users

func (r repo) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := r.write(ctx, func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return conflict("user %s exists", u.ID)
		}
		for _, existing := range st.users {
			if existing.Email == u.Email {
				return conflict("email %q is already registered", u.Email)
			}
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		st.users[u.ID] = u
		return nil
	})
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

func (r repo) GetUser(ctx context.Context, id string) (auth.User, error) {
	var out auth.User
	err := r.read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return notFound("user %s", id)
		}
		out = u
		return nil
	})
	return out, err
}

func (r repo) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out auth.User
	err := r.read(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return notFound("user with email %q", email)
	})
	return out, err
}

// Memberships

func (r repo) UpsertMembership(ctx context.Context, m auth.UserTenant) (auth.UserTenant, error) {
	err := r.write(ctx, func(st *state) error {
		if _, ok := st.users[m.UserID]; !ok {
			return notFound("user %s", m.UserID)
		}
		if _, ok := st.tenants[m.TenantID]; !ok {
			return notFound("tenant %s", m.TenantID)
		}
		key := pair(m.UserID, m.TenantID)
		if existing, ok := st.memberships[key]; ok {
			m.ID = existing.ID
		}
		if m.ID == "" {
			m.ID = ids.New()
		}
		if m.IsActive {
			m.LeftAt = nil
		}
		st.memberships[key] = m
		return nil
	})
	if err != nil {
		return auth.UserTenant{}, err
	}
	return m, nil
}

func (r repo) GetMembership(ctx context.Context, userID, tenantID string) (auth.UserTenant, error) {
	var out auth.UserTenant
	err := r.read(ctx, func(st *state) error {
		m, ok := st.memberships[pair(userID, tenantID)]
		if !ok {
			return notFound("membership of user %s in tenant %s", userID, tenantID)
		}
		out = m
		return nil
	})
	return out, err
}

func (r repo) DeactivateMembership(ctx context.Context, userID, tenantID string, leftAt time.Time) error {
	return r.write(ctx, func(st *state) error {
		key := pair(userID, tenantID)
		m, ok := st.memberships[key]
		if !ok {
			return notFound("membership of user %s in tenant %s", userID, tenantID)
		}
		m.IsActive = false
		m.LeftAt = &leftAt
		st.memberships[key] = m
		return nil
	})
}

func (r repo) DeleteUserGrants(ctx context.Context, userID, tenantID string) error {
	return r.write(ctx, func(st *state) error {
		delete(st.userClaims, pair(userID, tenantID))
		for key, ur := range st.userRoles {
			if ur.UserID == userID && ur.TenantID == tenantID {
				delete(st.userRoles, key)
			}
		}
		return nil
	})
}

// Roles

func (r repo) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	err := r.write(ctx, func(st *state) error {
		if _, ok := st.tenants[role.TenantID]; !ok {
			return notFound("tenant %s", role.TenantID)
		}
		if _, ok := st.roles[role.ID]; ok {
			return conflict("role %s exists", role.ID)
		}
		for _, existing := range st.roles {
			if existing.TenantID == role.TenantID && existing.Name == role.Name {
				return conflict("role %q exists in tenant %s", role.Name, role.TenantID)
			}
		}
		if role.CreatedAt.IsZero() {
			role.CreatedAt = time.Now().UTC()
		}
		st.roles[role.ID] = role
		return nil
	})
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (r repo) GetRole(ctx context.Context, id string) (auth.Role, error) {
	var out auth.Role
	err := r.read(ctx, func(st *state) error {
		role, ok := st.roles[id]
		if !ok {
			return notFound("role %s", id)
		}
		out = role
		return nil
	})
	return out, err
}

func (r repo) ListRoles(ctx context.Context, tenantID string) ([]auth.Role, error) {
	var out []auth.Role
	err := r.read(ctx, func(st *state) error {
		for _, role := range st.roles {
			if role.TenantID == tenantID {
				out = append(out, role)
			}
		}
		return nil
	})
	sortRoles(out)
	return out, err
}

func (r repo) DeleteRole(ctx context.Context, id string) error {
	return r.write(ctx, func(st *state) error {
		if _, ok := st.roles[id]; !ok {
			return notFound("role %s", id)
		}
		delete(st.roles, id)
		delete(st.roleClaims, id)
		for key, ur := range st.userRoles {
			if ur.RoleID == id {
				delete(st.userRoles, key)
			}
		}
		return nil
	})
}

func (r repo) AssignUserRole(ctx context.Context, ur auth.UserRole) (auth.UserRole, error) {
	err := r.write(ctx, func(st *state) error {
		if _, ok := st.users[ur.UserID]; !ok {
			return notFound("user %s", ur.UserID)
		}
		role, ok := st.roles[ur.RoleID]
		if !ok {
			return notFound("role %s", ur.RoleID)
		}
		ur.TenantID = role.TenantID
		key := pair(ur.UserID, ur.RoleID)
		if existing, ok := st.userRoles[key]; ok {
			ur = existing
			return nil
		}
		if ur.ID == "" {
			ur.ID = ids.New()
		}
		st.userRoles[key] = ur
		return nil
	})
	if err != nil {
		return auth.UserRole{}, err
	}
	return ur, nil
}

func (r repo) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	return r.write(ctx, func(st *state) error {
		key := pair(userID, roleID)
		if _, ok := st.userRoles[key]; !ok {
			return notFound("role %s is not assigned to user %s", roleID, userID)
		}
		delete(st.userRoles, key)
		return nil
	})
}

func (r repo) ListUserRoles(ctx context.Context, userID, tenantID string) ([]auth.Role, error) {
	var out []auth.Role
	err := r.read(ctx, func(st *state) error {
		for _, ur := range st.userRoles {
			if ur.UserID == userID && ur.TenantID == tenantID {
				if role, ok := st.roles[ur.RoleID]; ok {
					out = append(out, role)
				}
			}
		}
		return nil
	})
	sortRoles(out)
	return out, err
}

func sortRoles(roles []auth.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}

// Catalog

func (r repo) UpsertMasterClaims(ctx context.Context, claims []auth.MasterClaim) error {
	return r.write(ctx, func(st *state) error {
		for _, c := range claims {
			var existing *auth.MasterClaim
			for _, mc := range st.masterClaims {
				if mc.ClaimValue == c.ClaimValue {
					existing = &mc
					break
				}
			}
			if existing != nil {
				now := time.Now().UTC()
				c.ID = existing.ID
				c.CreatedAt = existing.CreatedAt
				c.UpdatedAt = &now
			}
			if c.ID == "" {
				c.ID = ids.New()
			}
			st.masterClaims[c.ID] = c
		}
		return nil
	})
}

func (r repo) ListMasterClaims(ctx context.Context) ([]auth.MasterClaim, error) {
	var out []auth.MasterClaim
	err := r.read(ctx, func(st *state) error {
		for _, c := range st.masterClaims {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimValue < out[j].ClaimValue })
	return out, err
}

func (r repo) MasterClaimsByValue(ctx context.Context, values []string) ([]auth.MasterClaim, error) {
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}
	var out []auth.MasterClaim
	err := r.read(ctx, func(st *state) error {
		for _, c := range st.masterClaims {
			if _, ok := want[c.ClaimValue]; ok {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// Claims

func (r repo) AddRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error {
	return r.write(ctx, func(st *state) error {
		if _, ok := st.roles[roleID]; !ok {
			return notFound("role %s", roleID)
		}
		set := st.roleClaims[roleID]
		if set == nil {
			set = map[string]struct{}{}
			st.roleClaims[roleID] = set
		}
		for _, id := range masterClaimIDs {
			if _, ok := st.masterClaims[id]; !ok {
				return notFound("master claim %s", id)
			}
			set[id] = struct{}{}
		}
		return nil
	})
}

func (r repo) RemoveRoleClaims(ctx context.Context, roleID string, masterClaimIDs []string) error {
	return r.write(ctx, func(st *state) error {
		set := st.roleClaims[roleID]
		for _, id := range masterClaimIDs {
			delete(set, id)
		}
		return nil
	})
}

func (r repo) ClearRoleClaims(ctx context.Context, roleID string) error {
	return r.write(ctx, func(st *state) error {
		delete(st.roleClaims, roleID)
		return nil
	})
}

func (r repo) AddUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error {
	return r.write(ctx, func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return notFound("user %s", userID)
		}
		if _, ok := st.tenants[tenantID]; !ok {
			return notFound("tenant %s", tenantID)
		}
		key := pair(userID, tenantID)
		set := st.userClaims[key]
		if set == nil {
			set = map[string]struct{}{}
			st.userClaims[key] = set
		}
		for _, id := range masterClaimIDs {
			if _, ok := st.masterClaims[id]; !ok {
				return notFound("master claim %s", id)
			}
			set[id] = struct{}{}
		}
		return nil
	})
}

func (r repo) RemoveUserClaims(ctx context.Context, userID, tenantID string, masterClaimIDs []string) error {
	return r.write(ctx, func(st *state) error {
		set := st.userClaims[pair(userID, tenantID)]
		for _, id := range masterClaimIDs {
			delete(set, id)
		}
		return nil
	})
}

func (r repo) ClearUserClaims(ctx context.Context, userID, tenantID string) error {
	return r.write(ctx, func(st *state) error {
		delete(st.userClaims, pair(userID, tenantID))
		return nil
	})
}

func (r repo) RoleClaimValues(ctx context.Context, roleID string) ([]string, error) {
	var out []string
	err := r.read(ctx, func(st *state) error {
		out = st.values(st.roleClaims[roleID])
		return nil
	})
	return out, err
}

func (r repo) UserRoleClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	var out []string
	err := r.read(ctx, func(st *state) error {
		seen := map[string]struct{}{}
		for _, ur := range st.userRoles {
			if ur.UserID != userID || (tenantID != nil && ur.TenantID != *tenantID) {
				continue
			}
			for id := range st.roleClaims[ur.RoleID] {
				seen[id] = struct{}{}
			}
		}
		out = st.values(seen)
		return nil
	})
	return out, err
}

func (r repo) UserDirectClaimValues(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	var out []string
	err := r.read(ctx, func(st *state) error {
		seen := map[string]struct{}{}
		for key, set := range st.userClaims {
			owner, tenant, _ := strings.Cut(key, "|")
			if owner != userID || (tenantID != nil && tenant != *tenantID) {
				continue
			}
			for id := range set {
				seen[id] = struct{}{}
			}
		}
		out = st.values(seen)
		return nil
	})
	return out, err
}

func (st *state) values(claimIDs map[string]struct{}) []string {
	out := make([]string, 0, len(claimIDs))
	for id := range claimIDs {
		if c, ok := st.masterClaims[id]; ok {
			out = append(out, c.ClaimValue)
		}
	}
	sort.Strings(out)
	return out
}
