package service

import (
	"context"
	"errors"
	"time"

	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/platform/tracer"
	"warden/pkg/requestcontext"
)

// Login outcomes recorded in metrics and spans.
const (
	outcomeSuccess            = "success"
	outcomeRateLimited        = "rate_limited"
	outcomeLocked             = "locked"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeInvalidInput       = "invalid_input"
	outcomeUnavailable        = "unavailable"
	outcomeError              = "error"
)

var errInvalidCredentials = dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")

// Login authenticates creds on behalf of client and issues a token.
//
// Denials are domain errors: RateLimited and AccountLocked carry a retry hint;
// a wrong password and an unknown account are both InvalidCredentials. The
// failing attempt that reaches the lockout threshold still answers
// InvalidCredentials; the lock is reported from the next attempt on.
// An unreachable account store fails closed as RateLimited.
func (s *Service) Login(ctx context.Context, client rlmodels.ClientKey, creds models.Credentials) (res *models.LoginResult, err error) {
	start := time.Now()
	accountID := models.NormalizeAccountID(creds.AccountID)

	ctx, span := s.tracer.Start(ctx, tracer.SpanLogin,
		tracer.String(tracer.AttrAccount, tracer.HashIdentifier(accountID)),
	)
	outcome := outcomeError
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
		s.observeLogin(outcome, time.Since(start))
	}()

	decision, err := s.limiter.AllowRoute(ctx, client, rlmodels.RouteLogin)
	if err != nil {
		return nil, err
	}
	if decision.Degraded {
		span.SetAttributes(tracer.Bool(tracer.AttrDegraded, true))
	}
	if !decision.Allowed {
		outcome = outcomeRateLimited
		span.AddEvent(tracer.EventRateLimited, tracer.Duration(tracer.AttrRetryAfter, decision.RetryAfter))
		return nil, decision.Err()
	}

	if accountID == "" || creds.Password == "" {
		outcome = outcomeInvalidInput
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account id and password are required")
	}

	locked, retryAfter, err := s.lockout.IsLocked(ctx, accountID)
	if err != nil {
		outcome = outcomeUnavailable
		return nil, s.failClosed(ctx, err)
	}
	if locked {
		outcome = outcomeLocked
		return nil, accountLocked(retryAfter)
	}

	acc, err := s.accounts.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.hasher.Verify(creds.Password, s.dummyDigest)
			outcome = outcomeInvalidCredentials
			s.loginFailed(ctx, accountID, "unknown_account")
			return nil, errInvalidCredentials
		}
		outcome = outcomeUnavailable
		return nil, s.failClosed(ctx, dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "failed to load account"))
	}

	if !s.hasher.Verify(creds.Password, acc.PasswordHash) {
		state, err := s.lockout.RecordAttempt(ctx, accountID, false)
		switch {
		case dErrors.HasCode(err, dErrors.CodeConflict):
			// the password was wrong either way
			s.logger.WarnContext(ctx, "failed login not recorded", "error", err)
		case err != nil:
			outcome = outcomeUnavailable
			return nil, s.failClosed(ctx, err)
		case state.Locked:
			span.AddEvent(tracer.EventLockout)
		}
		outcome = outcomeInvalidCredentials
		s.loginFailed(ctx, accountID, "wrong_password")
		return nil, errInvalidCredentials
	}

	state, err := s.lockout.RecordAttempt(ctx, accountID, true)
	if err != nil {
		outcome = outcomeUnavailable
		return nil, s.failClosed(ctx, err)
	}
	if state.Locked {
		// locked by a concurrent attempt after IsLocked answered
		outcome = outcomeLocked
		return nil, accountLocked(state.RetryAfter(requestcontext.Now(ctx)))
	}

	tok, err := s.tokens.Issue(ctx, accountID, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	rehash := s.hasher.NeedsRehash(acc.PasswordHash)
	if rehash && s.metrics != nil {
		s.metrics.IncrementPasswordRehashRequired()
	}

	outcome = outcomeSuccess
	s.audit.Log(ctx, audit.EventLoginSucceeded,
		"account_id", accountID,
		"rehash_needed", rehash,
	)
	return &models.LoginResult{Token: tok, RehashNeeded: rehash}, nil
}

// failClosed turns a store failure into a RateLimited denial with the
// configured retry hint. The cause is logged, never returned to the caller.
func (s *Service) failClosed(ctx context.Context, err error) error {
	s.logger.ErrorContext(ctx, "login denied: account state unavailable", "error", err)
	return dErrors.NewRetryable(dErrors.CodeRateLimited, "try again later", s.unavailableRetryAfter)
}

func accountLocked(retryAfter time.Duration) error {
	return dErrors.NewRetryable(dErrors.CodeAccountLocked, "account is temporarily locked", retryAfter)
}
