// Package admin guards operator endpoints with a shared admin token.
package admin

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

const (
	HeaderToken = "X-Admin-Token"
	HeaderActor = "X-Admin-Actor-ID"

	maxActorLength = 64
)

// UnknownActor is recorded when the operator did not name themselves.
const UnknownActor = "unknown"

type actorKey struct{}

// ActorID returns the operator recorded by RequireAdminToken, or "" when ctx
// did not pass through it.
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// RequireAdminToken admits requests whose X-Admin-Token matches token. An
// empty token rejects everything. X-Admin-Actor-ID names the operator for
// audit lines; malformed values are replaced by UnknownActor.
func RequireAdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			got := sha256.Sum256([]byte(r.Header.Get(HeaderToken)))
			if token == "" || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				logger.WarnContext(ctx, "admin token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"route", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "admin token required"))
				return
			}
			ctx = context.WithValue(ctx, actorKey{}, actorFrom(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(r *http.Request) string {
	id := r.Header.Get(HeaderActor)
	if id == "" || len(id) > maxActorLength {
		return UnknownActor
	}
	for _, c := range []byte(id) {
		if c <= ' ' || c >= 0x7f {
			return UnknownActor
		}
	}
	return id
}
