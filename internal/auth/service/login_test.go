package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
	"warden/pkg/testutil"
)

func (s *ServiceSuite) creds(password string) models.Credentials {
	return models.Credentials{AccountID: testutil.TestAccounts.Alice, Password: password}
}

func (s *ServiceSuite) TestLogin() {
	acc := testutil.NewAccountBuilder().Build()
	alice := testutil.TestAccounts.Alice

	s.Run("success issues a token and resets the counter", func() {
		tok := &models.Token{Value: "signed", Subject: alice, ExpiresAt: s.now.Add(30 * time.Minute)}
		gomock.InOrder(
			s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.allow(), nil),
			s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil),
			s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil),
			s.hasher.EXPECT().Verify("correct horse", acc.PasswordHash).Return(true),
			s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, true).Return(models.LockState{}, nil),
			s.tokens.EXPECT().Issue(gomock.Any(), alice, 30*time.Minute).Return(tok, nil),
			s.hasher.EXPECT().NeedsRehash(acc.PasswordHash).Return(false),
		)

		res, err := s.service.Login(s.ctx, s.client, s.creds("correct horse"))
		s.Require().NoError(err)
		s.Equal(tok, res.Token)
		s.False(res.RehashNeeded)
	})

	s.Run("account id is normalized before every collaborator", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(nil, sentinel.ErrNotFound)
		s.hasher.EXPECT().Verify("pw", dummyDigest).Return(false)

		_, err := s.service.Login(s.ctx, s.client, models.Credentials{AccountID: "  Alice@Example.COM ", Password: "pw"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("rate limited login never touches the account", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.deny(50*time.Second), nil)

		_, err := s.service.Login(s.ctx, s.client, s.creds("whatever"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Equal(50*time.Second, dErrors.RetryAfterOf(err))
	})

	s.Run("locked account is denied without hashing", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(true, 4*time.Minute, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, s.creds("correct horse"))
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
		s.Equal(4*time.Minute, dErrors.RetryAfterOf(err))
	})

	s.Run("unknown account runs a dummy verification", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(nil, fmt.Errorf("account: %w", sentinel.ErrNotFound))
		s.hasher.EXPECT().Verify("pw", dummyDigest).Return(false)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("wrong password records a failure", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify("wrong", acc.PasswordHash).Return(false)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, false).Return(models.LockState{FailedAttempts: 1}, nil)

		_, err := s.service.Login(s.ctx, s.client, s.creds("wrong"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("failure that reaches the threshold still answers invalid credentials", func() {
		until := s.now.Add(5 * time.Minute)
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify("wrong", acc.PasswordHash).Return(false)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, false).
			Return(models.LockState{FailedAttempts: 5, LockedUntil: &until, Locked: true}, nil)

		_, err := s.service.Login(s.ctx, s.client, s.creds("wrong"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("lock won by a concurrent attempt denies the success", func() {
		until := s.now.Add(5 * time.Minute)
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify("correct horse", acc.PasswordHash).Return(true)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, true).
			Return(models.LockState{FailedAttempts: 5, LockedUntil: &until, Locked: true}, nil)
		s.tokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, s.creds("correct horse"))
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
		s.Equal(5*time.Minute, dErrors.RetryAfterOf(err))
	})

	s.Run("outdated digest is reported", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, true).Return(models.LockState{}, nil)
		s.tokens.EXPECT().Issue(gomock.Any(), alice, gomock.Any()).Return(&models.Token{Value: "t"}, nil)
		s.hasher.EXPECT().NeedsRehash(acc.PasswordHash).Return(true)

		res, err := s.service.Login(s.ctx, s.client, s.creds("correct horse"))
		s.Require().NoError(err)
		s.True(res.RehashNeeded)
	})

	s.Run("missing credentials are invalid input after the limiter", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, models.Credentials{AccountID: " ", Password: "pw"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing credentials still count against the login limit", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteLogin).Return(s.deny(20*time.Second), nil)

		_, err := s.service.Login(s.ctx, s.client, models.Credentials{AccountID: alice, Password: ""})
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Equal(20*time.Second, dErrors.RetryAfterOf(err))
	})
}

func (s *ServiceSuite) TestLoginBackendFailures() {
	alice := testutil.TestAccounts.Alice
	unavailable := dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeBackendUnavailable, "failed")

	s.Run("lockout store unavailable fails closed as rate limited", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), unavailable)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Equal(DefaultUnavailableRetryAfter, dErrors.RetryAfterOf(err))
		s.NotContains(err.Error(), "refused")
	})

	s.Run("account store unavailable fails closed as rate limited", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(nil, errors.New("connection reset"))

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Positive(dErrors.RetryAfterOf(err))
	})

	s.Run("failed attempt that cannot be recorded fails closed", func() {
		acc := testutil.NewAccountBuilder().Build()
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify("wrong", acc.PasswordHash).Return(false)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, false).Return(models.LockState{}, unavailable)

		_, err := s.service.Login(s.ctx, s.client, s.creds("wrong"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("lockout conflict on a wrong password is still invalid credentials", func() {
		acc := testutil.NewAccountBuilder().Build()
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify("wrong", acc.PasswordHash).Return(false)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, false).
			Return(models.LockState{}, dErrors.New(dErrors.CodeConflict, "changed concurrently"))

		_, err := s.service.Login(s.ctx, s.client, s.creds("wrong"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("success that cannot reset the counter fails closed", func() {
		acc := testutil.NewAccountBuilder().Build()
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, true).Return(models.LockState{}, unavailable)
		s.tokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("rate limiter backend denial is rate limited", func() {
		d := s.deny(time.Second)
		d.Reason = rlmodels.ReasonBackendUnavailable
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(d, nil)

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("token signing failure is internal", func() {
		acc := testutil.NewAccountBuilder().Build()
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.lockout.EXPECT().IsLocked(gomock.Any(), alice).Return(false, time.Duration(0), nil)
		s.accounts.EXPECT().Load(gomock.Any(), alice).Return(acc, nil)
		s.hasher.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true)
		s.lockout.EXPECT().RecordAttempt(gomock.Any(), alice, true).Return(models.LockState{}, nil)
		s.tokens.EXPECT().Issue(gomock.Any(), alice, gomock.Any()).Return(nil, errors.New("sign"))

		_, err := s.service.Login(s.ctx, s.client, s.creds("pw"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
