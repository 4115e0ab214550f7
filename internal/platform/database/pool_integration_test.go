//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/testutil/containers"
)

func TestNew_AppliesSchema(t *testing.T) {
	pg := containers.Postgres(t)
	ctx := context.Background()

	pool, err := New(ctx, DefaultConfig(pg.DSN), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	require.NoError(t, pool.Health(ctx))

	var n int
	err = pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('accounts','rate_limit_events','token_revocations')`,
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNew_EmptyURL(t *testing.T) {
	pool, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Error(t, pool.Health(context.Background()))
}
