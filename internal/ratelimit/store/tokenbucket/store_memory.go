// Package tokenbucket implements an in-memory token bucket store.
package tokenbucket

import (
	"context"
	"math/bits"
	"time"

	"warden/internal/ratelimit/models"
	wsync "warden/pkg/platform/sync"
)

// DefaultIdleTTL is how long a full bucket is retained before Sweep evicts it.
const DefaultIdleTTL = 10 * time.Minute

// InMemoryStore keeps one bucket per key: capacity = limit.Requests, refilled
// continuously at limit.Requests per limit.Window.
type InMemoryStore struct {
	buckets *wsync.ShardedMap[*bucket]
	idleTTL time.Duration
}

// bucket holds whole tokens plus carry, the fraction of the next token in
// units of 1/window. Refill products are computed in 128 bits, so any valid
// limit refills exactly without overflowing.
type bucket struct {
	tokens     int64
	carry      uint64
	requests   int64
	window     int64
	lastRefill time.Time
	lastSeen   time.Time
}

type Option func(*InMemoryStore)

// WithIdleTTL sets how long a refilled bucket is kept before eviction.
func WithIdleTTL(d time.Duration) Option {
	return func(s *InMemoryStore) {
		if d >= 0 {
			s.idleTTL = d
		}
	}
}

func NewInMemoryStore(shards int, opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		buckets: wsync.NewShardedMap[*bucket](shards),
		idleTTL: DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBucket(limit models.Limit, now time.Time) *bucket {
	b := &bucket{lastRefill: now, lastSeen: now}
	b.configure(limit)
	b.tokens = b.requests
	return b
}

func (b *bucket) full() bool {
	return b.tokens >= b.requests
}

// configure applies the current limit. On a change the whole tokens are kept
// up to the new capacity and the partial token is dropped.
func (b *bucket) configure(limit models.Limit) {
	requests, window := int64(limit.Requests), int64(limit.Window)
	if b.requests == requests && b.window == window {
		return
	}
	b.requests, b.window = requests, window
	b.tokens = min(b.tokens, requests)
	b.carry = 0
}

func (b *bucket) refill(now time.Time) {
	elapsed := int64(now.Sub(b.lastRefill))
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now
	if b.full() {
		b.carry = 0
		return
	}
	// a full window refills everything
	if elapsed >= b.window {
		b.tokens, b.carry = b.requests, 0
		return
	}
	// elapsed < window and carry < window keep the high word below window,
	// which is what Div64 requires.
	hi, lo := bits.Mul64(uint64(elapsed), uint64(b.requests))
	var c uint64
	lo, c = bits.Add64(lo, b.carry, 0)
	hi += c
	gained, rem := bits.Div64(hi, lo, uint64(b.window))

	b.tokens += int64(gained)
	b.carry = rem
	if b.full() {
		b.tokens, b.carry = b.requests, 0
	}
}

// untilTokens is how long until the bucket holds n more tokens than it does now,
// counting the partial token already accrued.
func (b *bucket) untilTokens(n int64) time.Duration {
	if n <= 0 {
		return 0
	}
	// n*window < requests*window, so the high word stays below requests.
	hi, lo := bits.Mul64(uint64(n), uint64(b.window))
	var borrow uint64
	lo, borrow = bits.Sub64(lo, b.carry, 0)
	hi -= borrow
	q, r := bits.Div64(hi, lo, uint64(b.requests))
	if r > 0 {
		q++
	}
	return time.Duration(q)
}

func (b *bucket) take(limit models.Limit, now time.Time) *models.Decision {
	b.configure(limit)
	b.refill(now)
	if now.After(b.lastSeen) {
		b.lastSeen = now
	}

	if b.tokens < 1 {
		wait := b.untilTokens(1)
		return models.Deny(limit.Requests, now.Add(wait), wait)
	}
	b.tokens--
	untilFull := b.untilTokens(b.requests - b.tokens)
	return models.Allow(limit.Requests, int(b.tokens), now.Add(untilFull))
}

func (b *bucket) idle(now time.Time, idleTTL time.Duration) bool {
	b.refill(now)
	return b.full() && !now.Before(b.lastSeen.Add(idleTTL))
}

// Allow takes one token from key's bucket if available.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	var decision *models.Decision
	s.buckets.Update(key, func(cur *bucket, ok bool) (*bucket, bool) {
		if !ok {
			cur = newBucket(limit, now)
		}
		decision = cur.take(limit, now)
		return cur, true
	})
	return decision, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.buckets.Delete(key)
	return nil
}

// Sweep evicts buckets that are full again and have been idle for the idle TTL.
// An evicted bucket is indistinguishable from a new one.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.buckets.Sweep(func(_ string, b *bucket) bool {
		return b.idle(now, s.idleTTL)
	}), nil
}

func (s *InMemoryStore) Len() int {
	return s.buckets.Len()
}
