package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles Redis operations for the message log and the
// token blacklist.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Append pushes an entry to the tail of the list, trims the list to the
// most recent max entries and refreshes the key TTL. The three commands
// run in a single MULTI/EXEC batch so readers of the same key never see
// an appended-but-untrimmed intermediate state.
func (s *RedisStore) Append(ctx context.Context, key, entry string, max int64, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, entry)
	pipe.LTrim(ctx, key, -max, -1)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns list entries between start and stop (inclusive, Redis
// index semantics).
func (s *RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

// Len returns the list length. A missing key reads as zero.
func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

// Delete removes the list entirely.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Revoke marks a token as invalidated until its natural expiry.
func (s *RedisStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Set(ctx, blacklistKey(token), "revoked", ttl).Err()
}

// IsRevoked reports whether a token has been blacklisted.
func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := s.client.Get(ctx, blacklistKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}
