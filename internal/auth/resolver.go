package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Resolver answers permission questions for a (user, tenant) pair. It holds no
// state besides the repository, so one instance serves concurrent requests.
type Resolver struct {
	claims ClaimRepository
}

// NewResolver constructs a Resolver over the claim read paths.
func NewResolver(claims ClaimRepository) (*Resolver, error) {
	if claims == nil {
		return nil, errors.New("claim repository is required")
	}
	return &Resolver{claims: claims}, nil
}

// bypass records which hierarchy markers a user holds in any tenant.
type bypass struct {
	owner bool
	admin bool
	cross bool
}

func (b bypass) any() bool { return b.owner || b.admin || b.cross }

// grants is the single implementation of the hierarchy rules:
// business.owner grants any string at all, system.admin grants well-formed
// tenant-scoped, system. and global. permissions, cross.tenant.access grants
// well-formed global. ones.
func (b bypass) grants(permission string) bool {
	if b.owner {
		return true
	}
	if !ValidPermission(permission) {
		return false
	}
	scope := ScopeOf(permission)
	switch {
	case b.admin && (scope == ScopeTenant || scope == ScopeSystem || scope == ScopeGlobal):
		return true
	case b.cross && scope == ScopeGlobal:
		return true
	default:
		return false
	}
}

func bypassFrom(values []string) bypass {
	var b bypass
	for _, v := range values {
		switch v {
		case PermBusinessOwner:
			b.owner = true
		case PermSystemAdmin:
			b.admin = true
		case PermCrossTenantAccess:
			b.cross = true
		}
	}
	return b
}

func (r *Resolver) loadBypass(ctx context.Context, userID string) (bypass, error) {
	viaRoles, err := r.claims.UserRoleClaimValues(ctx, userID, nil)
	if err != nil {
		return bypass{}, internalError("load role claims", err)
	}
	direct, err := r.claims.UserDirectClaimValues(ctx, userID, nil)
	if err != nil {
		return bypass{}, internalError("load direct claims", err)
	}
	b := bypassFrom(viaRoles)
	d := bypassFrom(direct)
	return bypass{owner: b.owner || d.owner, admin: b.admin || d.admin, cross: b.cross || d.cross}, nil
}

type effectiveSet struct {
	role   map[string]struct{}
	direct map[string]struct{}
}

func (e effectiveSet) has(permission string) bool {
	if _, ok := e.role[permission]; ok {
		return true
	}
	_, ok := e.direct[permission]
	return ok
}

func (r *Resolver) loadEffective(ctx context.Context, userID, tenantID string) (effectiveSet, error) {
	viaRoles, err := r.claims.UserRoleClaimValues(ctx, userID, &tenantID)
	if err != nil {
		return effectiveSet{}, internalError("load role claims", err)
	}
	direct, err := r.claims.UserDirectClaimValues(ctx, userID, &tenantID)
	if err != nil {
		return effectiveSet{}, internalError("load direct claims", err)
	}
	return effectiveSet{role: toSet(viaRoles), direct: toSet(direct)}, nil
}

// HasPermission reports whether the user holds permission inside tenantID.
// Malformed or unknown permissions are granted to business owners only.
func (r *Resolver) HasPermission(ctx context.Context, userID, tenantID, permission string) (bool, error) {
	d, err := r.Evaluate(ctx, userID, tenantID, Require(permission))
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// HasAny reports whether at least one of permissions is granted. An empty
// list is never satisfied.
func (r *Resolver) HasAny(ctx context.Context, userID, tenantID string, permissions []string) (bool, error) {
	if len(permissions) == 0 {
		return false, nil
	}
	d, err := r.Evaluate(ctx, userID, tenantID, RequireAny(permissions...))
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// HasAll reports whether every one of permissions is granted. An empty list
// is always satisfied.
func (r *Resolver) HasAll(ctx context.Context, userID, tenantID string, permissions []string) (bool, error) {
	if len(permissions) == 0 {
		return true, nil
	}
	d, err := r.Evaluate(ctx, userID, tenantID, RequireAll(permissions...))
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Evaluate checks req and reports which permissions were granted and which
// are missing. Hierarchy markers are consulted first; the tenant-scoped
// union is only loaded when they do not settle every permission.
func (r *Resolver) Evaluate(ctx context.Context, userID, tenantID string, req Requirement) (Decision, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return Decision{}, invalidInputf("user_id and tenant_id are required")
	}
	required := dedupeStrings(req.Permissions)
	if len(required) == 0 {
		return decide(req.Kind, nil, nil), nil
	}

	b, err := r.loadBypass(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	settled := true
	for _, p := range required {
		if ValidPermission(p) && !b.grants(p) {
			settled = false
			break
		}
	}
	if settled {
		return decide(req.Kind, required, b.grants), nil
	}

	eff, err := r.loadEffective(ctx, userID, tenantID)
	if err != nil {
		return Decision{}, err
	}
	return decide(req.Kind, required, func(p string) bool {
		return b.grants(p) || (ValidPermission(p) && eff.has(p))
	}), nil
}

// EvaluateBypass checks req against the hierarchy markers only. It is used for
// cross-tenant access where tenant-scoped grants do not apply.
func (r *Resolver) EvaluateBypass(ctx context.Context, userID string, req Requirement) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, invalidInputf("user_id is required")
	}
	required := dedupeStrings(req.Permissions)
	if len(required) == 0 {
		return decide(req.Kind, nil, nil), nil
	}
	b, err := r.loadBypass(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return decide(req.Kind, required, b.grants), nil
}

// EffectivePermissions returns the (value, source) pairs granted inside
// tenantID, sorted by value then source. A value granted both through a role
// and directly appears twice.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, tenantID string) ([]EffectivePermission, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return nil, invalidInputf("user_id and tenant_id are required")
	}
	eff, err := r.loadEffective(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]EffectivePermission, 0, len(eff.role)+len(eff.direct))
	for v := range eff.role {
		out = append(out, EffectivePermission{Value: v, Source: SourceRole})
	}
	for v := range eff.direct {
		out = append(out, EffectivePermission{Value: v, Source: SourceDirect})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

// PermissionValues flattens EffectivePermissions into sorted unique values.
func PermissionValues(perms []EffectivePermission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if n := len(out); n > 0 && out[n-1] == p.Value {
			continue
		}
		out = append(out, p.Value)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// HasBypass reports whether the user holds any hierarchy marker in any tenant.
func (r *Resolver) HasBypass(ctx context.Context, userID string) (bool, error) {
	b, err := r.loadBypass(ctx, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}
	return b.any(), nil
}
