package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var ErrEventRequired = errors.New("event name is required")

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the
// caller's user and tenant.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return ErrEventRequired
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if ac, ok := auth.AuthFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", ac.UserID()), zap.String("tenant_id", ac.TenantID()))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf = append(zf, zap.Object("fields", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, k := range keys {
			if err := enc.AddReflected(k, fields[k]); err != nil {
				return err
			}
		}
		return nil
	})))

	obs.Logger().Info("audit", zf...)
	return nil
}
