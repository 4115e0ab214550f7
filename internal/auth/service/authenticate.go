package service

import (
	"context"

	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/tracer"
)

// Authenticate admits client on route and resolves the bearer token to a principal.
// Every unacceptable token is Unauthenticated. So is a token that cannot be
// checked because the revocation list is unreachable.
func (s *Service) Authenticate(ctx context.Context, client rlmodels.ClientKey, route rlmodels.Route, raw string) (principal *models.Principal, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAuthenticate,
		tracer.String(tracer.AttrRoute, string(route)),
	)
	defer func() { span.End(err) }()

	decision, err := s.limiter.AllowRoute(ctx, client, route)
	if err != nil {
		return nil, err
	}
	if decision.Degraded {
		span.SetAttributes(tracer.Bool(tracer.AttrDegraded, true))
	}
	if !decision.Allowed {
		span.AddEvent(tracer.EventRateLimited, tracer.Duration(tracer.AttrRetryAfter, decision.RetryAfter))
		return nil, decision.Err()
	}

	claims, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBackendUnavailable) {
			// Wrap would keep the backend code; the cause stays in the log
			s.logger.ErrorContext(ctx, "token rejected: revocation list unavailable", "error", err)
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthenticated, "invalid token")
	}
	return claims.Principal(), nil
}
