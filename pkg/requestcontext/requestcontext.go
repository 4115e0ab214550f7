// Package requestcontext carries request-scoped values through context.Context.
// Middleware populates these values once per request; services and stores read them.
package requestcontext

import (
	"context"
	"time"
)

type (
	contextKeyTime      struct{}
	contextKeyRequestID struct{}
	contextKeyClientIP  struct{}
	contextKeyUserAgent struct{}
	contextKeySubject   struct{}
	contextKeyRoute     struct{}
	contextKeyTokenID   struct{}
	contextKeyDegraded  struct{}
)

// Now returns the request-scoped time, or time.Now() when none was injected.
// Every admission decision and lockout transition within one request uses the same instant.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Used by the requesttime middleware, by workers for batch consistency, and by tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyTime{}, t)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyRequestID{}).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID{}, id)
}

// ClientIP returns the resolved client address, or "" when unknown.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyClientIP{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyUserAgent{}).(string)
	return v
}

// WithClientMetadata stores the client address and user agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, ip)
	return context.WithValue(ctx, contextKeyUserAgent{}, userAgent)
}

// Subject returns the authenticated account identifier set by the auth middleware.
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(contextKeySubject{}).(string)
	return v
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, subject)
}

// TokenID returns the jti of the bearer token that authenticated the request.
func TokenID(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyTokenID{}).(string)
	return v
}

func WithTokenID(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, contextKeyTokenID{}, jti)
}

// Route returns the logical route name used for admission scoping.
func Route(ctx context.Context) string {
	v, _ := ctx.Value(contextKeyRoute{}).(string)
	return v
}

func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, contextKeyRoute{}, route)
}

// Degraded reports whether an upstream admission decision was made by a fallback store.
func Degraded(ctx context.Context) bool {
	v, _ := ctx.Value(contextKeyDegraded{}).(bool)
	return v
}

func WithDegraded(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyDegraded{}, true)
}
