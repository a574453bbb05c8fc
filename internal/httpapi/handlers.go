package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/obs"
)

const defaultMaxBodyBytes = 1 << 20

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe is a readiness check, typically a database ping.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	router       chi.Router
	svc          *auth.Service
	sessions     *auth.SessionService
	tokens       *auth.TokenIssuer
	readyProbe   ReadyProbe
	version      string
	logger       *zap.Logger
	maxBodyBytes int64
}

// Option configures API.
type Option func(*API)

// WithLogger sets the logger used for request and error logging.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// New wires the auth services over store and builds the router.
func New(store auth.Store, tokens *auth.TokenIssuer, rp ReadyProbe, version string, opts ...Option) (*API, error) {
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	a := &API{
		tokens:       tokens,
		readyProbe:   rp,
		version:      version,
		logger:       obs.Logger(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}

	svc, err := auth.NewService(store, auth.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionService(store, svc.Resolver, tokens)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	a.sessions = sessions
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(a.LoggingJSON)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBodyBytes) })

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Post("/v1/auth/token", a.handleAuthToken)
	r.Post("/v1/tenants", a.handleProvisionTenant)

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)

		r.Get("/v1/me/permissions", a.handleMyPermissions)
		r.Post("/v1/permissions/check", a.handleCheckPermissions)
		r.Get("/v1/permissions/catalog", a.handleCatalog)

		r.Get("/v1/roles/templates", a.handleListTemplates)
		r.Post("/v1/roles/from-template", a.handleCreateRoleFromTemplate)
		r.Get("/v1/roles", a.handleListRoles)
		r.Post("/v1/roles", a.handleCreateRole)
		r.Route("/v1/roles/{roleID}", func(r chi.Router) {
			r.Get("/", a.handleGetRole)
			r.Delete("/", a.handleDeleteRole)
			r.Get("/claims", a.handleRoleClaims)
			r.Post("/claims", a.handleAssignRoleClaims)
			r.Put("/claims", a.handleReplaceRoleClaims)
			r.Delete("/claims", a.handleRemoveRoleClaims)
		})

		r.Post("/v1/memberships/invite", a.handleInvite)
		r.Post("/v1/memberships/accept", a.handleAcceptInvite)

		r.Route("/v1/users/{userID}", func(r chi.Router) {
			r.Delete("/membership", a.handleRemoveMembership)
			r.Get("/roles", a.handleUserRoles)
			r.Post("/roles", a.handleAssignUserRole)
			r.Delete("/roles/{roleID}", a.handleUnassignUserRole)
			r.Get("/claims", a.handleUserClaims)
			r.Post("/claims", a.handleAssignUserClaims)
			r.Put("/claims", a.handleReplaceUserClaims)
			r.Delete("/claims", a.handleRemoveUserClaims)
			r.Get("/permissions", a.handleUserPermissions)
		})
	})
	return r
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

// Service exposes the wired auth services.
func (a *API) Service() *auth.Service { return a.svc }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tessera-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "tessera-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
