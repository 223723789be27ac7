package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Event names written to the audit trail.
const (
	EventDenied            = "authz.denied"
	EventLogin             = "auth.login"
	EventUserCreated       = "user.created"
	EventUserUpdated       = "user.updated"
	EventUserDeleted       = "user.deleted"
	EventCompanyCreated    = "company.created"
	EventCompanyUpdated    = "company.updated"
	EventCompanyDeleted    = "company.deleted"
	EventCompanySuspended  = "company.suspended"
	EventCompanyActivated  = "company.activated"
	EventProgrammeCreated  = "programme.created"
	EventProgrammeCertify  = "programme.certified"
	EventProgrammeRetired  = "programme.retired"
	EventTransferRequested = "transfer.requested"
	EventInventorySaved    = "inventory.saved"
	EventInventoryReviewed = "inventory.reviewed"
)

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

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{zap.String("type", "audit"), zap.String("event", event)}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		zf = append(zf, zap.Int64("user_id", userID))
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
