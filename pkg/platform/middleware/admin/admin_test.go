package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// AdminMiddlewareSuite covers the operator gate in front of unlock and
// rate limit reset. A request with the wrong token must never reach the handler.
type AdminMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AdminMiddlewareSuite) serve(expected string, headers map[string]string) (context.Context, *httptest.ResponseRecorder) {
	var seen context.Context
	h := RequireAdminToken(expected, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin/rate-limit/reset", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec
}

func (s *AdminMiddlewareSuite) TestMatchingTokenPasses() {
	ctx, rec := s.serve("s3cret", map[string]string{HeaderToken: "s3cret"})
	s.Require().NotNil(ctx)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(UnknownActor, ActorID(ctx))
}

func (s *AdminMiddlewareSuite) TestRejections() {
	cases := map[string]struct {
		expected string
		headers  map[string]string
	}{
		"wrong token":         {"s3cret", map[string]string{HeaderToken: "s3cre"}},
		"token prefix":        {"s3cret", map[string]string{HeaderToken: "s3cret-and-more"}},
		"missing token":       {"s3cret", nil},
		"gate not configured": {"", map[string]string{HeaderToken: ""}},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			ctx, rec := s.serve(tc.expected, tc.headers)
			s.Nil(ctx, "handler must not run")
			s.Equal(http.StatusUnauthorized, rec.Code)
			s.Contains(rec.Body.String(), "unauthorized")
		})
	}
}

func (s *AdminMiddlewareSuite) TestActorID() {
	s.Run("recorded when well formed", func() {
		ctx, _ := s.serve("t", map[string]string{HeaderToken: "t", HeaderActor: "ops-oncall@example.com"})
		s.Equal("ops-oncall@example.com", ActorID(ctx))
	})

	for name, actor := range map[string]string{
		"with space":   "ops oncall",
		"with newline": "ops\nlevel=ERROR",
		"too long":     strings.Repeat("a", maxActorLength+1),
		"non ascii":    "öps",
	} {
		s.Run(name+" is replaced", func() {
			ctx, _ := s.serve("t", map[string]string{HeaderToken: "t", HeaderActor: actor})
			s.Equal(UnknownActor, ActorID(ctx))
		})
	}

	s.Run("absent outside the gate", func() {
		s.Empty(ActorID(context.Background()))
	})
}
