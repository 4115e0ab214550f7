// Package observability provides the rate limiter's operational logging helpers.
package observability

import (
	"context"
	"log/slog"

	"warden/pkg/requestcontext"
)

// LogWarn writes an operational warning with the request ID attached.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, attrList ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	logger.WarnContext(ctx, msg, attrList...)
}
