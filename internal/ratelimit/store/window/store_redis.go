package window

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warden/internal/ratelimit/models"
)

const defaultRedisPrefix = "warden:rl:log"

// slidingLogScript purges, counts and conditionally records in one atomic step.
// Scores are unix milliseconds, computed by the caller.
//
// KEYS[1] log key
// ARGV[1] now, ARGV[2] cutoff (now - window), ARGV[3] limit, ARGV[4] unique member, ARGV[5] ttl
// Returns {allowed, count after the call, oldest score}.
var slidingLogScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, ARGV[5])

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = tonumber(ARGV[1])
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisStore implements the sliding-window log as a Redis sorted set per key.
// The Lua script makes each decision atomic across all instances sharing the Redis.
// Keys expire on their own one window after the last admitted request, so no sweep is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store that namespaces keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Decision, error) {
	if key == "" {
		return nil, fmt.Errorf("rate limit key is required")
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	nowMs := now.UnixMilli()
	windowMs := max(limit.Window.Milliseconds(), 1)
	res, err := slidingLogScript.Run(ctx, s.client,
		[]string{s.key(key)},
		nowMs, nowMs-windowMs, limit.Requests, uuid.NewString(), windowMs,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis sliding log: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("redis sliding log: unexpected reply length %d", len(res))
	}

	allowed, count := res[0] == 1, int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(limit.Window)
	if !allowed {
		return models.Deny(limit.Requests, resetAt, resetAt.Sub(now)), nil
	}
	return models.Allow(limit.Requests, limit.Requests-count, resetAt), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis reset rate limit: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}
