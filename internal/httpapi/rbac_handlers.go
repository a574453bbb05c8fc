package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tessera.dev/internal/audit"
	"tessera.dev/internal/auth"
)

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type templateRoleRequest struct {
	Template string `json:"template"`
	Name     string `json:"name"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

type acceptRequest struct {
	TenantID string `json:"tenant_id"`
}

type checkRequest struct {
	UserID      string   `json:"user_id"`
	Mode        string   `json:"mode"`
	Permissions []string `json:"permissions"`
}

type checkResponse struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Mode     string `json:"mode"`
	auth.Decision
}

type effectiveResponse struct {
	UserID      string                     `json:"user_id"`
	TenantID    string                     `json:"tenant_id"`
	Permissions []auth.EffectivePermission `json:"permissions"`
}

type roleResponse struct {
	auth.Role
	Permissions []string `json:"permissions"`
}

func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.AuthFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "missing caller")
		return
	}
	perms, err := a.svc.Resolver.EffectivePermissions(r.Context(), ac.UserID(), ac.TenantID())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, effectiveResponse{UserID: ac.UserID(), TenantID: ac.TenantID(), Permissions: perms})
}

func parseRequirement(mode string, perms []string) (auth.Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "single":
		if len(perms) != 1 {
			return auth.Requirement{}, fmt.Errorf("%w: single mode takes exactly one permission", auth.ErrInvalidInput)
		}
		return auth.Require(perms[0]), nil
	case "any":
		return auth.RequireAny(perms...), nil
	case "all":
		return auth.RequireAll(perms...), nil
	default:
		return auth.Requirement{}, fmt.Errorf("%w: unknown mode %q", auth.ErrInvalidInput, mode)
	}
}

// handleCheckPermissions answers single/any/all questions for the caller or,
// with authorization.view, for another user.
func (a *API) handleCheckPermissions(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	requirement, err := parseRequirement(req.Mode, req.Permissions)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ac, ok := auth.AuthFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "missing caller")
		return
	}
	tenantID := tenantScope(r, ac)
	target := strings.TrimSpace(req.UserID)

	var d auth.Decision
	if target == "" || target == ac.UserID() {
		target = ac.UserID()
		d, err = a.svc.Guard.AuthorizeResource(r.Context(), ac, tenantID, requirement)
	} else {
		if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermAuthorizationView)); !ok {
			return
		}
		d, err = a.svc.Resolver.Evaluate(r.Context(), target, tenantID, requirement)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{
		UserID:   target,
		TenantID: tenantID,
		Mode:     requirement.Kind.String(),
		Decision: d,
	})
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authorize(w, r, "", auth.RequireAny(auth.PermRolesView, auth.PermAuthorizationView)); !ok {
		return
	}
	cats, err := a.svc.Catalog.Categories(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authorize(w, r, "", auth.Require(auth.PermRolesView)); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": auth.ListTemplates()})
}

func (a *API) handleCreateRoleFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tpl, err := auth.ParseTemplateType(req.Template)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermRolesCreate)); !ok {
		return
	}
	role, err := a.svc.Roles.CreateRoleFromTemplate(r.Context(), tenantID, tpl, req.Name)
	if err != nil {
		handleError(w, r, err)
		return
	}
	perms := auth.TemplateFor(tpl).Permissions
	_ = audit.LogEvent(r.Context(), "role.created_from_template", map[string]any{
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
		"template":    string(tpl),
		"permissions": len(perms),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, roleResponse{Role: role, Permissions: perms})
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermRolesView)); !ok {
		return
	}
	roles, err := a.svc.Roles.ListRoles(r.Context(), tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermRolesCreate)); !ok {
		return
	}
	role, err := a.svc.Roles.CreateRole(r.Context(), tenantID, req.Name, req.Description)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]any{
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
		"name":        role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, roleResponse{Role: role, Permissions: []string{}})
}

// roleFor loads the role named in the path and authorizes req against the
// role's tenant.
func (a *API) roleFor(w http.ResponseWriter, r *http.Request, roleID string, req auth.Requirement) (auth.Role, bool) {
	role, err := a.svc.Roles.GetRole(r.Context(), roleID)
	if err != nil {
		handleError(w, r, err)
		return auth.Role{}, false
	}
	if _, ok := a.authorize(w, r, role.TenantID, req); !ok {
		return auth.Role{}, false
	}
	return role, true
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, ok := a.roleFor(w, r, chi.URLParam(r, "roleID"), auth.Require(auth.PermRolesView))
	if !ok {
		return
	}
	perms, err := a.svc.Claims.ClaimsForRole(r.Context(), role.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{Role: role, Permissions: perms})
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	role, ok := a.roleFor(w, r, chi.URLParam(r, "roleID"), auth.Require(auth.PermRolesDelete))
	if !ok {
		return
	}
	if err := a.svc.Roles.DeleteRole(r.Context(), role.ID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleClaims(w http.ResponseWriter, r *http.Request) {
	role, ok := a.roleFor(w, r, chi.URLParam(r, "roleID"), auth.Require(auth.PermRolesView))
	if !ok {
		return
	}
	perms, err := a.svc.Claims.ClaimsForRole(r.Context(), role.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role_id": role.ID, "permissions": perms})
}

func (a *API) handleAssignRoleClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateRoleClaims(w, r, "role.claims.assigned", a.svc.Claims.AssignToRole)
}

func (a *API) handleReplaceRoleClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateRoleClaims(w, r, "role.claims.replaced", a.svc.Claims.ReplaceRoleClaims)
}

func (a *API) handleRemoveRoleClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateRoleClaims(w, r, "role.claims.removed", a.svc.Claims.RemoveFromRole)
}

type roleClaimsFunc func(ctx context.Context, roleID string, values []string) error

func (a *API) mutateRoleClaims(w http.ResponseWriter, r *http.Request, event string, fn roleClaimsFunc) {
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := a.roleFor(w, r, chi.URLParam(r, "roleID"), auth.Require(auth.PermRolesEdit))
	if !ok {
		return
	}
	if err := fn(r.Context(), role.ID, req.Permissions); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
		"permissions": req.Permissions,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermUsersInvite)); !ok {
		return
	}
	m, err := a.svc.Memberships.Invite(r.Context(), tenantID, req.UserID, ac.UserID())
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.invited", map[string]any{
		"member_id":     m.UserID,
		"member_tenant": m.TenantID,
	})
	writeJSON(w, http.StatusCreated, m)
}

// handleAcceptInvite lets the caller accept an invitation into another
// tenant; the caller's token still belongs to a tenant they are active in.
func (a *API) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ac, ok := auth.AuthFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "missing caller")
		return
	}
	m, err := a.svc.Memberships.Accept(r.Context(), ac.UserID(), req.TenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.accepted", map[string]any{
		"member_tenant": m.TenantID,
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleRemoveMembership(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermUsersDelete)); !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := a.svc.Memberships.Remove(r.Context(), userID, tenantID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.removed", map[string]any{
		"member_id":     userID,
		"member_tenant": tenantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermUsersView)); !ok {
		return
	}
	roles, err := a.svc.Roles.RolesForUser(r.Context(), chi.URLParam(r, "userID"), tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleAssignUserRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	role, ok := a.roleFor(w, r, req.RoleID, auth.Require(auth.PermUsersManageRoles))
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	assignment, err := a.svc.Roles.AssignRole(r.Context(), userID, role.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role.assigned", map[string]any{
		"member_id":   userID,
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) handleUnassignUserRole(w http.ResponseWriter, r *http.Request) {
	role, ok := a.roleFor(w, r, chi.URLParam(r, "roleID"), auth.Require(auth.PermUsersManageRoles))
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := a.svc.Roles.UnassignRole(r.Context(), userID, role.ID); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.role.unassigned", map[string]any{
		"member_id":   userID,
		"role_id":     role.ID,
		"role_tenant": role.TenantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserClaims(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermAuthorizationView)); !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	perms, err := a.svc.Claims.DirectClaims(r.Context(), userID, &tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "tenant_id": tenantID, "permissions": perms})
}

func (a *API) handleAssignUserClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateUserClaims(w, r, "user.claims.assigned", a.svc.Claims.AssignDirect)
}

func (a *API) handleReplaceUserClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateUserClaims(w, r, "user.claims.replaced", a.svc.Claims.ReplaceDirect)
}

func (a *API) handleRemoveUserClaims(w http.ResponseWriter, r *http.Request) {
	a.mutateUserClaims(w, r, "user.claims.removed", a.svc.Claims.RemoveDirect)
}

type userClaimsFunc func(ctx context.Context, userID, tenantID string, values []string) error

func (a *API) mutateUserClaims(w http.ResponseWriter, r *http.Request, event string, fn userClaimsFunc) {
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermAuthorizationManage)); !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := fn(r.Context(), userID, tenantID, req.Permissions); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"member_id":     userID,
		"member_tenant": tenantID,
		"permissions":   req.Permissions,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleUserPermissions returns another user's effective permissions. Callers
// may always read their own.
func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.AuthFromContext(r.Context())
	tenantID := tenantScope(r, ac)
	userID := chi.URLParam(r, "userID")
	if userID != ac.UserID() || tenantID != ac.TenantID() {
		if _, ok := a.authorize(w, r, tenantID, auth.Require(auth.PermAuthorizationView)); !ok {
			return
		}
	}
	perms, err := a.svc.Resolver.EffectivePermissions(r.Context(), userID, tenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, effectiveResponse{UserID: userID, TenantID: tenantID, Permissions: perms})
}
