// Package requesttime pins one decision instant per request. The rate
// limiter, the lockout tracker and the token issuer all read it through
// requestcontext.Now, so a single request never straddles two clocks.
package requesttime

import (
	"net/http"
	"time"

	"warden/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock.
var Middleware = WithClock(time.Now)

// WithClock stamps each request with clock(). Tests pass a fixed clock.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
