// Package auth authenticates requests carrying a bearer token.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// Authenticator resolves a bearer token to the account it was issued to.
// Errors are domain errors: Unauthenticated for unacceptable tokens,
// RateLimited when the caller is throttled, BackendUnavailable on outages.
type Authenticator interface {
	AuthenticateBearer(ctx context.Context, token string) (subject, tokenID string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (string, string, error)

func (f AuthenticatorFunc) AuthenticateBearer(ctx context.Context, token string) (string, string, error) {
	return f(ctx, token)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// RequireAuth rejects requests without an acceptable bearer token and stores
// the subject and token ID of accepted ones on the request context.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := BearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid Authorization header"))
				return
			}

			subject, tokenID, err := authenticator.AuthenticateBearer(ctx, token)
			if err != nil {
				level := slog.LevelWarn
				if dErrors.HasCode(err, dErrors.CodeBackendUnavailable) {
					level = slog.LevelError
				}
				logger.Log(ctx, level, "unauthorized access",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithSubject(ctx, subject)
			ctx = requestcontext.WithTokenID(ctx, tokenID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
