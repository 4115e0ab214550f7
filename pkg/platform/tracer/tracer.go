// Package tracer is the span API the auth gateway records against. Spans are
// OpenTelemetry spans; the interfaces exist so services take a Tracer they
// can be handed in tests without touching the global provider.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names warden's tracer on the global provider.
const InstrumentationName = "warden"

// Span names.
const (
	SpanLogin        = "auth.login"
	SpanAuthenticate = "auth.authenticate"
	SpanRegister     = "auth.register"
)

// Attribute keys.
const (
	AttrAccount    = "warden.account.hash"
	AttrRoute      = "warden.ratelimit.route"
	AttrOutcome    = "warden.auth.outcome"
	AttrRetryAfter = "warden.retry_after_ms"
	AttrDegraded   = "warden.ratelimit.degraded"
)

// Event names.
const (
	EventRateLimited = "ratelimit.denied"
	EventLockout     = "lockout.triggered"
)

type Attribute = attribute.KeyValue

func String(key, value string) Attribute { return attribute.String(key, value) }
func Bool(key string, value bool) Attribute { return attribute.Bool(key, value) }
func Int64(key string, value int64) Attribute { return attribute.Int64(key, value) }

// Duration records value in whole milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return attribute.Int64(key, value.Milliseconds())
}

// HashIdentifier shortens an account identifier to 16 hex characters of its
// SHA-256 so spans can be correlated without carrying the identifier.
func HashIdentifier(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}

// Span is an active span. End must be called exactly once.
type Span interface {
	// End records err, when non-nil, as the span status and ends the span.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer starts spans. Implementations are safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanLogin, tracer.String(tracer.AttrAccount, tracer.HashIdentifier(id)))
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// OTelTracer starts spans on an OpenTelemetry tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTel traces through provider, or the global provider when nil.
func NewOTel(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer(InstrumentationName)}
}

// NewNoop returns a tracer whose spans record nothing.
func NewNoop() *OTelTracer {
	return NewOTel(noop.NewTracerProvider())
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.Span.RecordError(err)
		s.Span.SetStatus(codes.Error, err.Error())
	}
	s.Span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.Span.SetAttributes(attrs...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(attrs...))
}

var _ Tracer = (*OTelTracer)(nil)
