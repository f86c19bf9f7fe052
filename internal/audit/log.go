// Package audit records security-relevant events as structured log entries.
package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/obs"
)

// Event names.
const (
	LoginSucceeded    = "auth.login.succeeded"
	LoginFailed       = "auth.login.failed"
	RegisterSucceeded = "auth.register.succeeded"
	RegisterRejected  = "auth.register.rejected"
	TokenRefreshed    = "auth.token.refreshed"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and principal context.
// Callers must not pass passwords, salts, hashes or raw tokens in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := make([]zap.Field, 0, len(fields)+4)
	zf = append(zf, zap.String("type", "audit"), zap.String("event", event))
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		zf = append(zf, zap.String("actor", p.Email), zap.String("actor_role", p.Role.String()))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, zap.Any(k, fields[k]))
	}
	zf = append(zf, zap.Dict("fields", attrs...))

	obs.Logger().Info("audit", zf...)
	return nil
}
