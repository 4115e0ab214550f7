//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks

// Package handler exposes the auth gateway over HTTP.
//
// The status-code mapping here is a thin adapter; the gateway's domain errors
// carry the decision.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/middleware/admin"
	"warden/pkg/platform/middleware/auth"
	platformvalidation "warden/pkg/platform/validation"
	"warden/pkg/requestcontext"
)

// Service is the auth gateway as seen by HTTP.
type Service interface {
	Register(ctx context.Context, accountID, password string) (*models.Account, error)
	Login(ctx context.Context, client rlmodels.ClientKey, creds models.Credentials) (*models.LoginResult, error)
	Authenticate(ctx context.Context, client rlmodels.ClientKey, route rlmodels.Route, raw string) (*models.Principal, error)
	Logout(ctx context.Context, raw string) error
}

// Unlocker clears account lockouts for operators.
type Unlocker interface {
	Unlock(ctx context.Context, accountID string) error
}

type Handler struct {
	auth     Service
	unlocker Unlocker
	logger   *slog.Logger
}

func New(auth Service, unlocker Unlocker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, unlocker: unlocker, logger: logger}
}

// Register mounts the auth routes. Login and the protected routes are rate
// limited by the gateway itself; registration is limited through throttle,
// which keys on client IP.
func (h *Handler) Register(r chi.Router, throttle func(rlmodels.Route) func(http.Handler) http.Handler) {
	r.With(throttle(rlmodels.RouteRegister)).Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.With(h.RequireAuth(rlmodels.RouteMe)).Get("/auth/me", h.HandleMe)
	r.With(h.RequireAuth(rlmodels.RouteLogout)).Post("/auth/logout", h.HandleLogout)
}

// RegisterAdmin mounts operator routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/accounts/{account_id}/unlock", h.HandleUnlock)
}

// RequireAuth authenticates bearer tokens through the gateway, rate limiting
// the caller's IP on route before the token is checked.
func (h *Handler) RequireAuth(route rlmodels.Route) func(http.Handler) http.Handler {
	authenticator := auth.AuthenticatorFunc(func(ctx context.Context, token string) (string, string, error) {
		if len(token) > platformvalidation.MaxTokenLength {
			return "", "", dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
		}
		client := rlmodels.NewIPKey(requestcontext.ClientIP(ctx))
		p, err := h.auth.Authenticate(ctx, client, route, token)
		if err != nil {
			return "", "", err
		}
		return p.AccountID, p.TokenID, nil
	})
	return auth.RequireAuth(authenticator, h.logger)
}

// HandleRegister implements POST /auth/register.
//
// Input: { "account_id": "alice@example.com", "password": "..." }
// Output: 201 { "account_id": "alice@example.com", "created_at": "..." }
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger)
	if !ok {
		return
	}

	acc, err := h.auth.Register(ctx, req.AccountID, req.Password)
	if err != nil {
		h.logFailure(ctx, "register failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, &AccountResponse{
		AccountID: acc.ID,
		CreatedAt: acc.CreatedAt,
	})
}

// HandleLogin implements POST /auth/login.
//
// Input: { "account_id": "alice@example.com", "password": "..." }
// Output: { "access_token": "...", "token_type": "Bearer", "expires_in": 1800, "expires_at": "..." }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger)
	if !ok {
		return
	}

	client := rlmodels.NewIPKey(requestcontext.ClientIP(ctx))
	res, err := h.auth.Login(ctx, client, models.Credentials{AccountID: req.AccountID, Password: req.Password})
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}

	now := requestcontext.Now(ctx)
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, &TokenResponse{
		AccessToken:  res.Token.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(res.Token.ExpiresAt.Sub(now).Seconds()),
		ExpiresAt:    res.Token.ExpiresAt,
		RehashNeeded: res.RehashNeeded,
	})
}

// HandleMe implements GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := requestcontext.Subject(ctx)
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &MeResponse{
		AccountID: subject,
		TokenID:   requestcontext.TokenID(ctx),
	})
}

// HandleLogout implements POST /auth/logout. The presented token is revoked.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := auth.BearerToken(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}
	if err := h.auth.Logout(ctx, token); err != nil {
		h.logFailure(ctx, "logout failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock implements POST /admin/accounts/{account_id}/unlock.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := models.NormalizeAccountID(chi.URLParam(r, "account_id"))
	if accountID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "account_id is required"))
		return
	}
	if h.unlocker == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unlock is not available"))
		return
	}
	if err := h.unlocker.Unlock(ctx, accountID); err != nil {
		h.logFailure(ctx, "unlock failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "account unlocked by operator",
		"admin_actor", admin.ActorID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

// logFailure logs expected denials at info and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidCredentials, dErrors.CodeRateLimited, dErrors.CodeAccountLocked,
		dErrors.CodeConflict, dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeUnauthenticated,
		dErrors.CodeNotFound:
		level = slog.LevelInfo
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
