package revocation

import (
	"context"
	"time"

	wsync "warden/pkg/platform/sync"
)

// InMemoryTRL is a sharded in-memory token revocation list.
// Entries are kept until the revoked token's own expiry and removed by Sweep.
type InMemoryTRL struct {
	revoked *wsync.ShardedMap[time.Time] // jti -> token expiry
}

// NewInMemoryTRL creates an empty revocation list.
func NewInMemoryTRL() *InMemoryTRL {
	return &InMemoryTRL{revoked: wsync.NewShardedMap[time.Time](wsync.DefaultShards)}
}

// Revoke records jti until expiresAt. Re-revoking keeps the later expiry.
func (t *InMemoryTRL) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	t.revoked.Update(jti, func(cur time.Time, ok bool) (time.Time, bool) {
		if ok && cur.After(expiresAt) {
			return cur, true
		}
		return expiresAt, true
	})
	return nil
}

// IsRevoked reports whether jti is revoked at now. An entry holds through
// the token's expiry instant.
func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string, now time.Time) (bool, error) {
	expiresAt, ok := t.revoked.Get(jti)
	if !ok {
		return false, nil
	}
	return !now.After(expiresAt), nil
}

// Sweep removes entries whose tokens have expired.
func (t *InMemoryTRL) Sweep(_ context.Context, now time.Time) (int, error) {
	return t.revoked.Sweep(func(_ string, expiresAt time.Time) bool {
		return now.After(expiresAt)
	}), nil
}

// Len returns the number of tracked entries.
func (t *InMemoryTRL) Len() int {
	return t.revoked.Len()
}
