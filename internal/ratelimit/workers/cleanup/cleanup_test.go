package cleanup

// Justification: these tests verify the sweep contract without waiting for
// real windows to elapse: every registered store is swept with the injected
// clock, and one failing store does not block the others.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/models"
	"warden/internal/ratelimit/store/window"
)

type mockSweeper struct {
	called    int
	lastNow   time.Time
	toReturn  int
	errReturn error
}

func (m *mockSweeper) Sweep(_ context.Context, now time.Time) (int, error) {
	m.called++
	m.lastNow = now
	return m.toReturn, m.errReturn
}

type SweepServiceSuite struct {
	suite.Suite
	now     time.Time
	service *SweepService
}

func TestSweepServiceSuite(t *testing.T) {
	suite.Run(t, new(SweepServiceSuite))
}

func (s *SweepServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.service = New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New(nil)),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *SweepServiceSuite) TestRunSweepsEveryStoreWithClock() {
	a := &mockSweeper{toReturn: 3}
	b := &mockSweeper{toReturn: 2}
	s.service.Register("a", a)
	s.service.Register("b", b)

	res, err := s.service.RunOnce(context.Background())

	s.Require().NoError(err)
	s.Equal(1, a.called)
	s.Equal(1, b.called)
	s.Equal(s.now, a.lastNow)
	s.Equal(5, res.Total())
	s.Equal(map[string]int{"a": 3, "b": 2}, res.Evicted)
}

func (s *SweepServiceSuite) TestFailingStoreDoesNotBlockOthers() {
	failing := &mockSweeper{errReturn: context.DeadlineExceeded}
	healthy := &mockSweeper{toReturn: 1}
	s.service.Register("failing", failing)
	s.service.Register("healthy", healthy)

	res, err := s.service.RunOnce(context.Background())

	s.Require().Error(err)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Contains(err.Error(), "sweep failing")
	s.Equal(1, healthy.called)
	s.Equal(1, res.Evicted["healthy"])
}

func (s *SweepServiceSuite) TestRegisterIgnoresNilAndDeduplicates() {
	s.service.Register("nil", nil)
	first := &mockSweeper{}
	second := &mockSweeper{}
	s.service.Register("x", first)
	s.service.Register("x", second)

	_, err := s.service.RunOnce(context.Background())

	s.Require().NoError(err)
	s.Equal(0, first.called)
	s.Equal(1, second.called)
}

func (s *SweepServiceSuite) TestRunStopsOnCancelledContext() {
	store := &mockSweeper{}
	s.service.Register("a", store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.service.RunOnce(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(0, store.called)
}

func (s *SweepServiceSuite) TestEvictsIdleWindowsFromMemoryStore() {
	store := window.NewInMemoryStore(4, window.WithIdleTTL(time.Minute))
	limit := models.Limit{Requests: 5, Window: time.Minute}
	_, err := store.Allow(context.Background(), "ip:10.0.0.1:login", limit, s.now.Add(-5*time.Minute))
	s.Require().NoError(err)
	_, err = store.Allow(context.Background(), "ip:10.0.0.2:login", limit, s.now)
	s.Require().NoError(err)
	s.service.Register("window", store)

	res, err := s.service.RunOnce(context.Background())

	s.Require().NoError(err)
	s.Equal(1, res.Evicted["window"])
	s.Equal(1, store.Len())
}

func (s *SweepServiceSuite) TestStartStopsWhenContextCancelled() {
	svc := New(WithInterval(time.Millisecond), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	store := &mockSweeper{}
	svc.Register("a", store)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Start(ctx)

	s.True(errors.Is(err, context.DeadlineExceeded))
}
