package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) AuthenticateBearer(ctx context.Context, token string) (string, string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.String(1), args.Error(2)
}

// mockHandler is a test handler that captures if it was called and the context
type mockHandler struct {
	called  bool
	context context.Context
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.called = true
	m.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type RequireAuthSuite struct {
	suite.Suite
	authenticator *MockAuthenticator
	next          *mockHandler
	handler       http.Handler
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.authenticator = new(MockAuthenticator)
	s.next = &mockHandler{}
	s.handler = RequireAuth(s.authenticator, slog.New(slog.NewTextHandler(io.Discard, nil)))(s.next)
}

func (s *RequireAuthSuite) TearDownTest() {
	s.authenticator.AssertExpectations(s.T())
}

func (s *RequireAuthSuite) serve(authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *RequireAuthSuite) TestValidToken() {
	s.authenticator.On("AuthenticateBearer", mock.Anything, "good").Return("alice", "jti-1", nil)

	w := s.serve("Bearer good")

	s.True(s.next.called)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("alice", requestcontext.Subject(s.next.context))
	s.Equal("jti-1", requestcontext.TokenID(s.next.context))
}

func (s *RequireAuthSuite) TestMissingOrMalformedHeader() {
	for _, header := range []string{"", "Basic abc", "Bearer ", "bearer good"} {
		s.next.called = false
		w := s.serve(header)
		s.False(s.next.called, header)
		s.Equal(http.StatusUnauthorized, w.Code, header)
		s.Contains(w.Header().Get("WWW-Authenticate"), "Bearer")
	}
}

func (s *RequireAuthSuite) TestRejections() {
	cases := map[string]struct {
		err    error
		status int
	}{
		"invalid token": {dErrors.New(dErrors.CodeUnauthenticated, "invalid token"), http.StatusUnauthorized},
		"rate limited":  {dErrors.NewRetryable(dErrors.CodeRateLimited, "slow down", 0), http.StatusTooManyRequests},
		"outage":        {dErrors.Wrap(errors.New("redis"), dErrors.CodeBackendUnavailable, "trl"), http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			s.next.called = false
			token := "token-" + name
			s.authenticator.On("AuthenticateBearer", mock.Anything, token).Return("", "", tc.err).Once()

			w := s.serve("Bearer " + token)

			s.False(s.next.called)
			s.Equal(tc.status, w.Code)
		})
	}
}
