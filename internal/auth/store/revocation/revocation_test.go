package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"warden/pkg/requestcontext"
)

type InMemoryTRLSuite struct {
	suite.Suite
	store *InMemoryTRL
	now   time.Time
}

func TestInMemoryTRLSuite(t *testing.T) {
	suite.Run(t, new(InMemoryTRLSuite))
}

func (s *InMemoryTRLSuite) SetupTest() {
	s.store = NewInMemoryTRL()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *InMemoryTRLSuite) TestRevokeAndIsRevoked() {
	ctx := context.Background()
	s.Require().NoError(s.store.Revoke(ctx, "jti_123", s.now.Add(time.Hour)))

	revoked, err := s.store.IsRevoked(ctx, "jti_123", s.now)
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.store.IsRevoked(ctx, "missing", s.now)
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *InMemoryTRLSuite) TestEntryLapsesWithTokenExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Revoke(ctx, "jti_expired", s.now.Add(time.Minute)))

	revoked, err := s.store.IsRevoked(ctx, "jti_expired", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.True(revoked, "entry holds through the expiry instant")

	revoked, err = s.store.IsRevoked(ctx, "jti_expired", s.now.Add(time.Minute+time.Millisecond))
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *InMemoryTRLSuite) TestRevokeKeepsLaterExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.store.Revoke(ctx, "jti", s.now.Add(time.Hour)))
	s.Require().NoError(s.store.Revoke(ctx, "jti", s.now.Add(time.Minute)))

	revoked, err := s.store.IsRevoked(ctx, "jti", s.now.Add(30*time.Minute))
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *InMemoryTRLSuite) TestSweepRemovesOnlyExpired() {
	ctx := context.Background()
	s.Require().NoError(s.store.Revoke(ctx, "short", s.now.Add(time.Minute)))
	s.Require().NoError(s.store.Revoke(ctx, "long", s.now.Add(time.Hour)))

	n, err := s.store.Sweep(ctx, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(1, s.store.Len())
}

func TestRedisTRL(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisTRL(client, "")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("revoked until expiry", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "jti_1", now.Add(30*time.Minute)))

		revoked, err := store.IsRevoked(ctx, "jti_1", now.Add(29*time.Minute))
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = store.IsRevoked(ctx, "jti_1", now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.True(t, revoked, "entry holds through the expiry instant")

		revoked, err = store.IsRevoked(ctx, "jti_1", now.Add(31*time.Minute))
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("key expires with the token", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "jti_2", now.Add(time.Minute)))
		assert.Equal(t, time.Minute+time.Second, server.TTL(defaultRedisPrefix+"jti_2"))

		server.FastForward(time.Minute + 2*time.Second)
		assert.False(t, server.Exists(defaultRedisPrefix+"jti_2"))
	})

	t.Run("already expired token is not stored", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "jti_3", now.Add(-time.Second)))
		assert.False(t, server.Exists(defaultRedisPrefix+"jti_3"))
	})

	t.Run("unavailable server surfaces an error", func(t *testing.T) {
		server.SetError("LOADING")
		defer server.SetError("")

		_, err := store.IsRevoked(ctx, "jti_1", now)
		assert.Error(t, err)
	})
}
