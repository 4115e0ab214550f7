package fixedwindow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ratelimit/models"
)

const defaultRedisPrefix = "warden:rl:fixed"

// RedisStore counts with INCR on a key per aligned window; the key expires when the window ends.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

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
	start, end := windowBounds(now, limit.Window)
	windowKey := s.windowKey(key, start)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.PExpire(ctx, windowKey, end.Sub(now)+time.Second)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis fixed window: %w", err)
	}
	return decide(incr.Val(), limit, now, end), nil
}

// Reset removes the counter for the current window of every configured size by pattern.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":"+key+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis reset rate limit: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis reset rate limit: %w", err)
	}
	return nil
}

func (s *RedisStore) windowKey(key string, start time.Time) string {
	return s.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)
}
