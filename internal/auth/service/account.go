package service

import (
	"context"
	"errors"

	"warden/internal/auth/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/platform/tracer"
	"warden/pkg/requestcontext"
)

// Register hashes password and stores a new account under accountID.
// A taken id is a Conflict.
func (s *Service) Register(ctx context.Context, accountID, password string) (acc *models.Account, err error) {
	accountID = models.NormalizeAccountID(accountID)
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegister,
		tracer.String(tracer.AttrAccount, tracer.HashIdentifier(accountID)),
	)
	defer func() { span.End(err) }()

	if accountID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "password rejected")
	}

	acc, err = models.NewAccount(accountID, digest, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "account already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBackendUnavailable, "failed to create account")
	}

	if s.metrics != nil {
		s.metrics.IncrementAccountsCreated()
	}
	s.audit.Log(ctx, audit.EventAccountRegistered, "account_id", acc.ID)
	return acc, nil
}

// Logout revokes raw so it no longer authenticates. Without a revocation list
// the token stays valid until it expires.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if err := s.tokens.Revoke(ctx, raw); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.EventTokenRevoked,
		"account_id", requestcontext.Subject(ctx),
		"token_id", requestcontext.TokenID(ctx),
	)
	return nil
}
