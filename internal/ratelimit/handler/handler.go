package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/internal/ratelimit/models"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/middleware/admin"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

// Resetter clears the stored request history of a client on a route.
type Resetter interface {
	Reset(ctx context.Context, client models.ClientKey, route models.Route) error
}

// ResetRequest is the body of POST /admin/rate-limit/reset.
type ResetRequest struct {
	Type       models.KeyPrefix `json:"type" validate:"required,oneof=ip user"`
	Identifier string           `json:"identifier" validate:"required,notblank,max=255"`
	Route      models.Route     `json:"route" validate:"required,oneof=default login register me logout global"`
}

func (r *ResetRequest) Validate() error {
	return validation.Validate(r)
}

func (r *ResetRequest) clientKey() models.ClientKey {
	if r.Type == models.KeyPrefixUser {
		return models.NewUserKey(r.Identifier)
	}
	return models.NewIPKey(r.Identifier)
}

type Handler struct {
	resetter Resetter
	logger   *slog.Logger
}

func New(resetter Resetter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resetter: resetter,
		logger:   logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limit/reset", h.HandleResetRateLimit)
}

// HandleResetRateLimit implements POST /admin/rate-limit/reset.
//
// Input: { "type": "ip", "identifier": "192.0.2.10", "route": "login" }
// Output: 204 No Content
func (h *Handler) HandleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ResetRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.resetter.Reset(ctx, req.clientKey(), req.Route); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit",
			"error", err,
			"limit_type", req.Type,
			"route", req.Route,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "rate limit reset",
		"limit_type", req.Type,
		"route", req.Route,
		"admin_actor", admin.ActorID(ctx),
		"request_id", requestID,
	)
	w.WriteHeader(http.StatusNoContent)
}
