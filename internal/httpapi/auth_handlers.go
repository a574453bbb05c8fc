package httpapi

import (
	"errors"
	"net/http"
	"time"

	"tessera.dev/internal/audit"
	"tessera.dev/internal/auth"
	"tessera.dev/internal/obs"
)

const minPasswordLength = 8

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

type provisionRequest struct {
	TenantName     string `json:"tenant_name"`
	Slug           string `json:"slug"`
	ContactEmail   string `json:"contact_email"`
	AdminEmail     string `json:"admin_email"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminPassword  string `json:"admin_password"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.sessions.Login(r.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		TenantID: req.TenantID,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeUnauthorized(w, r, "invalid credentials")
			return
		}
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    session.UserID,
		"tenant_id":  session.TenantID,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleProvisionTenant(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := decodeJSON(r, &req); err != nil {
		obs.ObserveProvisioning("invalid")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.AdminPassword) < minPasswordLength {
		obs.ObserveProvisioning("invalid")
		writeError(w, r, http.StatusBadRequest, "admin password must be at least 8 characters")
		return
	}
	hash, err := auth.HashPassword(req.AdminPassword)
	if err != nil {
		obs.ObserveProvisioning("error")
		handleError(w, r, err)
		return
	}
	res, err := a.svc.Provisioner.Provision(r.Context(), auth.ProvisionRequest{
		TenantName:        req.TenantName,
		Slug:              req.Slug,
		ContactEmail:      req.ContactEmail,
		AdminEmail:        req.AdminEmail,
		AdminFirstName:    req.AdminFirstName,
		AdminLastName:     req.AdminLastName,
		AdminPasswordHash: hash,
	})
	if err != nil {
		obs.ObserveProvisioning(provisionOutcome(err))
		handleError(w, r, err)
		return
	}
	obs.ObserveProvisioning("success")
	_ = audit.LogEvent(r.Context(), "tenant.provisioned", map[string]any{
		"tenant_id":     res.TenantID,
		"admin_user_id": res.UserID,
		"role_id":       res.RoleID,
		"slug":          req.Slug,
	})
	writeJSON(w, http.StatusCreated, res)
}

func provisionOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInternal):
		return "error"
	case errors.Is(err, auth.ErrConflict):
		return "conflict"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
