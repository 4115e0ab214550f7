package service

import (
	"context"
	"time"

	"warden/pkg/platform/audit"
)

// Observability helpers for logging, auditing, and metrics.

func (s *Service) observeLogin(outcome string, took time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementLoginOutcome(outcome)
	s.metrics.ObserveLoginDuration(took.Seconds())
}

func (s *Service) loginFailed(ctx context.Context, accountID, reason string) {
	s.audit.Log(ctx, audit.EventLoginFailed,
		"account_id", accountID,
		"reason", reason,
	)
}
