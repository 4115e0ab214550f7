package audit

import (
	"context"
	"log/slog"

	"warden/internal/platform/privacy"
	"warden/pkg/requestcontext"
)

// Emitter persists or forwards audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger provides structured audit logging with optional event emission.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. Either argument may be nil.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log writes event as an audit line and emits it.
// The request ID and the anonymized client IP are attached when present in ctx.
//
// Usage:
//
//	logger.Log(ctx, audit.EventAccountLocked, "account_id", id, "retry_after_ms", ms)
func (l *Logger) Log(ctx context.Context, event string, attributes ...any) {
	if l == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	var ipPrefix string
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		ipPrefix = privacy.AnonymizeIP(ip)
		attributes = append(attributes, "ip_prefix", ipPrefix)
	}

	if l.textLogger != nil {
		args := append(attributes, "event", event, "log_type", "audit")
		l.textLogger.InfoContext(ctx, event, args...)
	}

	if l.emitter == nil {
		return
	}
	err := l.emitter.Emit(ctx, Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    event,
		Subject:   extractString(attributes, "account_id"),
		Reason:    extractString(attributes, "reason"),
		RequestID: requestID,
		IPPrefix:  ipPrefix,
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event,
		)
	}
}

// extractString returns the string value following key in a slog-style attribute list.
func extractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		if k, ok := attributes[i].(string); ok && k == key {
			switch v := attributes[i+1].(type) {
			case string:
				return v
			case interface{ String() string }:
				return v.String()
			}
		}
	}
	return ""
}
