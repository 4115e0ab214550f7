package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/pkg/requestcontext"
)

const defaultRedisPrefix = "warden:trl:"

// RedisTRL stores revoked JTIs as keys that expire with the token.
type RedisTRL struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTRL constructs a Redis-backed revocation list.
func NewRedisTRL(client redis.UniversalClient, prefix string) *RedisTRL {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisTRL{client: client, prefix: prefix}
}

// Revoke records jti until expiresAt. Tokens already expired at the request
// time are not stored since they cannot validate anyway.
func (t *RedisTRL) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl < 0 {
		return nil
	}
	// Keep the key a second past exp so it still answers at the expiry instant.
	if err := t.client.Set(ctx, t.prefix+jti, expiresAt.Unix(), ttl+time.Second).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is revoked at now.
func (t *RedisTRL) IsRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	exp, err := t.client.Get(ctx, t.prefix+jti).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return !now.After(time.Unix(exp, 0)), nil
}
