package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token, resolves the caller's tenant and
// attaches the AuthContext. Requests without a usable tenant claim never
// reach the handler.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeUnauthorized(w, r, err.Error())
			return
		}
		claims, err := a.tokens.ParseToken(token)
		if err != nil {
			writeUnauthorized(w, r, "invalid token")
			return
		}
		ac, err := a.svc.Guard.Resolve(claims.Identity())
		if err != nil {
			handleError(w, r, err)
			return
		}
		publishCaller(r.Context(), ac)
		ctx := auth.ContextWithAuth(r.Context(), ac)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize checks req for the caller against resources of tenantID (the
// caller's own tenant when empty). It writes the rejection itself and
// reports whether the handler may continue.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, tenantID string, req auth.Requirement) (auth.AuthContext, bool) {
	ac, ok := auth.AuthFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "missing caller")
		return auth.AuthContext{}, false
	}
	if tenantID == "" {
		tenantID = ac.TenantID()
	}
	d, err := a.svc.Guard.AuthorizeResource(r.Context(), ac, tenantID, req)
	if err != nil {
		handleError(w, r, err)
		return auth.AuthContext{}, false
	}
	obs.ObserveDecision(operationName(r), d.Allowed)
	if !d.Allowed {
		payload := map[string]any{
			"error":   "forbidden",
			"missing": d.Missing,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusForbidden, payload)
		return auth.AuthContext{}, false
	}
	return ac, true
}

// tenantScope returns the tenant a request targets: the tenant_id query
// parameter when present, otherwise the caller's tenant.
func tenantScope(r *http.Request, ac auth.AuthContext) string {
	if t := strings.TrimSpace(r.URL.Query().Get("tenant_id")); t != "" {
		return t
	}
	return ac.TenantID()
}

func operationName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return r.Method + " " + p
		}
	}
	return r.Method + " " + obs.CanonicalPath(r.URL.Path)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tessera"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}
