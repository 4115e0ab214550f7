package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"warden/internal/auth/handler/mocks"
	"warden/internal/auth/models"
	rlmodels "warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
	"warden/pkg/testutil"
)

const clientIP = "192.0.2.10"

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	unlocker *mocks.MockUnlocker
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.unlocker = mocks.NewMockUnlocker(s.ctrl)

	h := New(s.service, s.unlocker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithTime(req.Context(), testutil.FixedNow)
			ctx = requestcontext.WithClientMetadata(ctx, clientIP, "test")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r, func(rlmodels.Route) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	})
	h.RegisterAdmin(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (s *HandlerSuite) TestRegister() {
	s.Run("created", func() {
		acc := testutil.NewAccountBuilder().Build()
		s.service.EXPECT().Register(gomock.Any(), "alice@example.com", "correct horse").Return(acc, nil)

		rec, body := s.do(http.MethodPost, "/auth/register", `{"account_id":" Alice@Example.com ","password":"correct horse"}`, "")
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal("alice@example.com", body["account_id"])
	})

	s.Run("short password is rejected before the service", func() {
		rec, body := s.do(http.MethodPost, "/auth/register", `{"account_id":"alice@example.com","password":"short"}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("validation_error", body["error"])
	})

	s.Run("duplicate account", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "account already exists"))

		rec, _ := s.do(http.MethodPost, "/auth/register", `{"account_id":"bob@example.com","password":"correct horse"}`, "")
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("malformed json", func() {
		rec, _ := s.do(http.MethodPost, "/auth/register", `{"account_id":`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestLogin() {
	creds := models.Credentials{AccountID: "alice@example.com", Password: " pw with spaces "}
	client := rlmodels.NewIPKey(clientIP)
	body := `{"account_id":"alice@example.com","password":" pw with spaces "}`

	s.Run("issues token", func() {
		tok := &models.Token{Value: "tok", ExpiresAt: testutil.FixedNow.Add(30 * time.Minute)}
		s.service.EXPECT().Login(gomock.Any(), client, creds).
			Return(&models.LoginResult{Token: tok}, nil)

		rec, resp := s.do(http.MethodPost, "/auth/login", body, "")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("tok", resp["access_token"])
		s.Equal("Bearer", resp["token_type"])
		s.EqualValues(1800, resp["expires_in"])
		s.Equal("no-store", rec.Header().Get("Cache-Control"))
	})

	s.Run("invalid credentials", func() {
		s.service.EXPECT().Login(gomock.Any(), client, creds).
			Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials"))

		rec, _ := s.do(http.MethodPost, "/auth/login", body, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("locked carries retry after", func() {
		s.service.EXPECT().Login(gomock.Any(), client, creds).
			Return(nil, dErrors.NewRetryable(dErrors.CodeAccountLocked, "account is temporarily locked", 90*time.Second))

		rec, _ := s.do(http.MethodPost, "/auth/login", body, "")
		s.Equal(http.StatusLocked, rec.Code)
		s.Equal("90", rec.Header().Get("Retry-After"))
	})

	s.Run("rate limited", func() {
		s.service.EXPECT().Login(gomock.Any(), client, creds).
			Return(nil, dErrors.NewRetryable(dErrors.CodeRateLimited, "rate limit exceeded", 1500*time.Millisecond))

		rec, _ := s.do(http.MethodPost, "/auth/login", body, "")
		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal("2", rec.Header().Get("Retry-After"))
	})

	s.Run("oversized password", func() {
		long := strings.Repeat("x", 200)
		rec, _ := s.do(http.MethodPost, "/auth/login", `{"account_id":"alice@example.com","password":"`+long+`"}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestMe() {
	s.Run("authenticated", func() {
		s.service.EXPECT().Authenticate(gomock.Any(), rlmodels.NewIPKey(clientIP), rlmodels.RouteMe, "tok").
			Return(&models.Principal{AccountID: "alice@example.com", TokenID: "jti-1"}, nil)

		rec, body := s.do(http.MethodGet, "/auth/me", "", "tok")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("alice@example.com", body["account_id"])
		s.Equal("jti-1", body["token_id"])
	})

	s.Run("missing token", func() {
		rec, _ := s.do(http.MethodGet, "/auth/me", "", "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("oversized token never reaches the gateway", func() {
		rec, _ := s.do(http.MethodGet, "/auth/me", "", strings.Repeat("a", 5000))
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("token that cannot be checked is unauthorized", func() {
		s.service.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token"))

		rec, _ := s.do(http.MethodGet, "/auth/me", "", "tok")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *HandlerSuite) TestLogout() {
	s.service.EXPECT().Authenticate(gomock.Any(), gomock.Any(), rlmodels.RouteLogout, "tok").
		Return(&models.Principal{AccountID: "alice@example.com"}, nil)
	s.service.EXPECT().Logout(gomock.Any(), "tok").
		DoAndReturn(func(ctx context.Context, _ string) error {
			s.Equal("alice@example.com", requestcontext.Subject(ctx))
			return nil
		})

	rec, _ := s.do(http.MethodPost, "/auth/logout", "", "tok")
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *HandlerSuite) TestUnlock() {
	s.Run("unlocks normalized id", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "alice@example.com").Return(nil)

		rec, _ := s.do(http.MethodPost, "/admin/accounts/Alice@Example.com/unlock", "", "")
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("unknown account", func() {
		s.unlocker.EXPECT().Unlock(gomock.Any(), "nobody").
			Return(dErrors.New(dErrors.CodeNotFound, "account not found"))

		rec, _ := s.do(http.MethodPost, "/admin/accounts/nobody/unlock", "", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}
