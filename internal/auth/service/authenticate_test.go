package service

import (
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"warden/internal/auth/models"
	"warden/internal/auth/token"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/testutil"
)

func (s *ServiceSuite) TestAuthenticate() {
	alice := testutil.TestAccounts.Alice

	s.Run("valid token yields the principal", func() {
		claims := &models.Claims{AccountID: alice, JTI: "jti-1", IssuedAt: s.now, ExpiresAt: s.now.Add(time.Hour)}
		gomock.InOrder(
			s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteMe).Return(s.allow(), nil),
			s.tokens.EXPECT().Validate(gomock.Any(), "raw").Return(claims, nil),
		)

		p, err := s.service.Authenticate(s.ctx, s.client, rlmodels.RouteMe, "raw")
		s.Require().NoError(err)
		s.Equal(alice, p.AccountID)
		s.Equal("jti-1", p.TokenID)
	})

	s.Run("rate limit is checked before the token", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), s.client, rlmodels.RouteMe).Return(s.deny(time.Second), nil)
		s.tokens.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Authenticate(s.ctx, s.client, rlmodels.RouteMe, "raw")
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("invalid token is unauthenticated", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.tokens.EXPECT().Validate(gomock.Any(), "raw").Return(nil, token.ErrInvalidToken)

		_, err := s.service.Authenticate(s.ctx, s.client, rlmodels.RouteMe, "raw")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	s.Run("revocation list outage fails closed as unauthenticated", func() {
		s.limiter.EXPECT().AllowRoute(gomock.Any(), gomock.Any(), gomock.Any()).Return(s.allow(), nil)
		s.tokens.EXPECT().Validate(gomock.Any(), "raw").
			Return(nil, dErrors.Wrap(errors.New("redis down"), dErrors.CodeBackendUnavailable, "trl"))

		_, err := s.service.Authenticate(s.ctx, s.client, rlmodels.RouteMe, "raw")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
		s.NotContains(err.Error(), "redis")
	})
}
