// Package window implements sliding-window log stores.
package window

import (
	"context"
	"time"

	"warden/internal/ratelimit/models"
	wsync "warden/pkg/platform/sync"
)

// DefaultIdleTTL is how long an emptied log is retained before Sweep evicts it.
const DefaultIdleTTL = 10 * time.Minute

// InMemoryStore implements the sliding-window log over a sharded map.
// Each key is serialized by its shard lock; there is no global lock.
type InMemoryStore struct {
	logs    *wsync.ShardedMap[*slidingLog]
	idleTTL time.Duration
}

// slidingLog is the per-key aggregate: admitted timestamps inside the trailing window.
// timestamps are non-decreasing.
type slidingLog struct {
	timestamps []time.Time
	window     time.Duration
	lastSeen   time.Time
}

type Option func(*InMemoryStore)

// WithIdleTTL sets how long an emptied log is kept before eviction.
func WithIdleTTL(d time.Duration) Option {
	return func(s *InMemoryStore) {
		if d >= 0 {
			s.idleTTL = d
		}
	}
}

// NewInMemoryStore creates a store with the given number of lock shards.
func NewInMemoryStore(shards int, opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		logs:    wsync.NewShardedMap[*slidingLog](shards),
		idleTTL: DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tryAdmit purges expired timestamps and admits now if the log has room.
func (l *slidingLog) tryAdmit(limit models.Limit, now time.Time) *models.Decision {
	l.window = limit.Window
	l.purge(now)
	if now.After(l.lastSeen) {
		l.lastSeen = now
	}

	if len(l.timestamps) >= limit.Requests {
		oldest := l.timestamps[0]
		resetAt := oldest.Add(l.window)
		return models.Deny(limit.Requests, resetAt, resetAt.Sub(now))
	}

	at := now
	if n := len(l.timestamps); n > 0 && at.Before(l.timestamps[n-1]) {
		// keep the log ordered when request-scoped clocks arrive out of order
		at = l.timestamps[n-1]
	}
	l.timestamps = append(l.timestamps, at)
	return models.Allow(limit.Requests, limit.Requests-len(l.timestamps), l.timestamps[0].Add(l.window))
}

// purge drops timestamps at or before now-window. Each timestamp is dropped once,
// so the cost is amortized O(1) per admitted request.
func (l *slidingLog) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.timestamps); i++ {
		if l.timestamps[i].After(cutoff) {
			break
		}
	}
	if i == 0 {
		return
	}
	l.timestamps = l.timestamps[i:]
	if cap(l.timestamps) > 2*len(l.timestamps)+16 {
		l.timestamps = append(make([]time.Time, 0, len(l.timestamps)), l.timestamps...)
	}
}

func (l *slidingLog) expired(now time.Time, idleTTL time.Duration) bool {
	l.purge(now)
	return len(l.timestamps) == 0 && !now.Before(l.lastSeen.Add(idleTTL))
}

// Allow admits one request for key at now if fewer than limit.Requests
// were admitted in the trailing limit.Window.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	var decision *models.Decision
	s.logs.Update(key, func(cur *slidingLog, ok bool) (*slidingLog, bool) {
		if !ok {
			cur = &slidingLog{}
		}
		decision = cur.tryAdmit(limit, now)
		return cur, true
	})
	return decision, nil
}

// Reset clears the log for key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.logs.Delete(key)
	return nil
}

// Count returns the number of timestamps inside the window for key at now.
func (s *InMemoryStore) Count(key string, now time.Time) int {
	n := 0
	s.logs.Update(key, func(cur *slidingLog, ok bool) (*slidingLog, bool) {
		if !ok {
			return nil, false
		}
		cur.purge(now)
		n = len(cur.timestamps)
		return cur, true
	})
	return n
}

// Sweep evicts logs whose window has fully elapsed and that have been idle for the idle TTL.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.logs.Sweep(func(_ string, l *slidingLog) bool {
		return l.expired(now, s.idleTTL)
	}), nil
}

// Len returns the number of tracked keys.
func (s *InMemoryStore) Len() int {
	return s.logs.Len()
}
