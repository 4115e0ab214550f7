package fixedwindow

import (
	"context"
	"time"

	"warden/internal/ratelimit/models"
	wsync "warden/pkg/platform/sync"
)

type counter struct {
	start time.Time
	end   time.Time
	count int64
}

// InMemoryStore counts requests per key in the aligned window containing now.
type InMemoryStore struct {
	counters *wsync.ShardedMap[*counter]
}

func NewInMemoryStore(shards int) *InMemoryStore {
	return &InMemoryStore{counters: wsync.NewShardedMap[*counter](shards)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	start, end := windowBounds(now, limit.Window)

	var decision *models.Decision
	s.counters.Update(key, func(cur *counter, ok bool) (*counter, bool) {
		if !ok || !cur.start.Equal(start) || !cur.end.Equal(end) {
			cur = &counter{start: start, end: end}
		}
		if cur.count <= int64(limit.Requests) {
			cur.count++
		}
		decision = decide(cur.count, limit, now, end)
		return cur, true
	})
	return decision, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.counters.Delete(key)
	return nil
}

// Sweep evicts counters whose window has ended.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.counters.Sweep(func(_ string, c *counter) bool {
		return !now.Before(c.end)
	}), nil
}

func (s *InMemoryStore) Len() int {
	return s.counters.Len()
}
