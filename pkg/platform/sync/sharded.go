package sync

import (
	"sync"
)

// DefaultShards is the shard count used when a caller passes a non-positive value.
const DefaultShards = 64

// ShardedMap is a keyed store partitioned into independently locked shards.
// Operations on the same key are serialized by the shard mutex; operations on
// keys in different shards proceed in parallel. There is no global lock.
type ShardedMap[V any] struct {
	shards []shard[V]
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

// NewShardedMap creates a map with n shards.
func NewShardedMap[V any](n int) *ShardedMap[V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &ShardedMap[V]{shards: make([]shard[V], n)}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Update runs fn with the current value for key while holding the key's shard lock.
// fn receives the zero value and ok=false when the key is absent. The returned value
// is stored unless keep is false, in which case the key is removed.
// fn must not call back into the map.
func (m *ShardedMap[V]) Update(key string, fn func(cur V, ok bool) (next V, keep bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	next, keep := fn(cur, ok)
	if keep {
		s.items[key] = next
		return
	}
	delete(s.items, key)
}

// Get returns the value stored for key.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Delete removes key. Missing keys are a no-op.
func (m *ShardedMap[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Sweep visits every entry one shard at a time and removes those for which
// evict returns true. It returns the number of removed entries.
// Only one shard is locked at any moment, so callers on other shards are never blocked.
func (m *ShardedMap[V]) Sweep(evict func(key string, v V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if evict(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries. The count is not a snapshot across shards.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	if key == "" {
		return &m.shards[0]
	}
	return &m.shards[hashString(key)%uint32(len(m.shards))]
}

// ShardedMutex provides fine-grained locking using sharded mutexes
// for callers that keep their own state outside the map.
type ShardedMutex struct {
	shards [32]sync.Mutex
}

// NewShardedMutex creates a new ShardedMutex with 32 shards.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString is a djb2-style hash used for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
