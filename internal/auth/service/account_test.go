package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"warden/internal/auth/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
	"warden/pkg/testutil"
)

func (s *ServiceSuite) TestRegister() {
	s.Run("stores a hashed account", func() {
		s.hasher.EXPECT().Hash("correct horse").Return("$2a$04$digest", nil)
		s.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, acc *models.Account) error {
				s.Equal(testutil.TestAccounts.Alice, acc.ID)
				s.Equal("$2a$04$digest", acc.PasswordHash)
				s.Zero(acc.FailedAttempts)
				s.Equal(s.now, acc.CreatedAt)
				return nil
			})

		acc, err := s.service.Register(s.ctx, " Alice@example.com", "correct horse")
		s.Require().NoError(err)
		s.Equal(testutil.TestAccounts.Alice, acc.ID)
	})

	s.Run("duplicate id is a conflict", func() {
		s.hasher.EXPECT().Hash(gomock.Any()).Return("$2a$04$digest", nil)
		s.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)

		_, err := s.service.Register(s.ctx, testutil.TestAccounts.Alice, "correct horse")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejected password is invalid input", func() {
		s.hasher.EXPECT().Hash("").Return("", dErrors.New(dErrors.CodeInvalidInput, "password is required"))

		_, err := s.service.Register(s.ctx, testutil.TestAccounts.Alice, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("store failure is backend unavailable", func() {
		s.hasher.EXPECT().Hash(gomock.Any()).Return("$2a$04$digest", nil)
		s.accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

		_, err := s.service.Register(s.ctx, testutil.TestAccounts.Alice, "correct horse")
		s.True(dErrors.HasCode(err, dErrors.CodeBackendUnavailable))
	})
}

func (s *ServiceSuite) TestLogout() {
	s.Run("revokes the token", func() {
		s.tokens.EXPECT().Revoke(gomock.Any(), "raw").Return(nil)
		s.NoError(s.service.Logout(s.ctx, "raw"))
	})

	s.Run("revocation failure is surfaced", func() {
		s.tokens.EXPECT().Revoke(gomock.Any(), "raw").
			Return(dErrors.New(dErrors.CodeBackendUnavailable, "could not revoke token"))
		err := s.service.Logout(s.ctx, "raw")
		s.True(dErrors.HasCode(err, dErrors.CodeBackendUnavailable))
	})
}
