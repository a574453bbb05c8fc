// Package client is a Go client for the tessera HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"tessera.dev/internal/auth"
)

// StatusError is returned for responses whose status has no auth error
// counterpart.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tessera: status %d: %s", e.Code, e.Message)
}

// Client talks to a tessera API server.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// ProvisionTenantRequest mirrors the POST /v1/tenants body.
type ProvisionTenantRequest struct {
	TenantName     string `json:"tenant_name"`
	Slug           string `json:"slug"`
	ContactEmail   string `json:"contact_email,omitempty"`
	AdminEmail     string `json:"admin_email"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminPassword  string `json:"admin_password"`
}

// ProvisionTenant creates a tenant with its first administrator.
func (c *Client) ProvisionTenant(ctx context.Context, req ProvisionTenantRequest) (auth.ProvisionResult, error) {
	var out auth.ProvisionResult
	err := c.do(ctx, http.MethodPost, "/v1/tenants", req, &out)
	return out, err
}

// Token logs in and returns a session scoped to tenantID.
func (c *Client) Token(ctx context.Context, email, password, tenantID string) (auth.Session, error) {
	var out auth.Session
	err := c.do(ctx, http.MethodPost, "/v1/auth/token", map[string]string{
		"email":     email,
		"password":  password,
		"tenant_id": tenantID,
	}, &out)
	return out, err
}

// MyPermissions returns the caller's effective permissions in its tenant.
func (c *Client) MyPermissions(ctx context.Context) ([]auth.EffectivePermission, error) {
	var out struct {
		Permissions []auth.EffectivePermission `json:"permissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/me/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

// Check evaluates permissions for the caller. mode is "single", "any" or
// "all".
func (c *Client) Check(ctx context.Context, mode string, permissions ...string) (auth.Decision, error) {
	var out auth.Decision
	err := c.do(ctx, http.MethodPost, "/v1/permissions/check", map[string]any{
		"mode":        mode,
		"permissions": permissions,
	}, &out)
	return out, err
}

// WaitReady polls /readyz until the server reports ready, retrying up to
// attempts times.
func (c *Client) WaitReady(ctx context.Context, attempts uint64, interval time.Duration) error {
	b := retry.WithMaxRetries(attempts, retry.NewConstant(interval))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.do(ctx, http.MethodGet, "/readyz", nil, nil); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
		return mapStatus(resp.StatusCode, payload.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapStatus converts an error response into the auth error taxonomy.
func mapStatus(code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = auth.ErrInvalidInput
	case http.StatusUnauthorized:
		sentinel = auth.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = auth.ErrForbidden
	case http.StatusNotFound:
		sentinel = auth.ErrNotFound
	case http.StatusConflict:
		sentinel = auth.ErrConflict
	default:
		return &StatusError{Code: code, Message: msg}
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// IsStatus reports whether err is a StatusError with code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
