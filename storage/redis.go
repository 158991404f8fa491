package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set that holds posted URLs.
const DefaultRedisKey = "goodnews:posted"

// RedisBackend keeps keys in a Redis set.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to the Redis server at url (redis://...).
func NewRedisBackend(url, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBackendWithClient(redis.NewClient(opts), key), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

// LoadKeys returns all members of the set.
func (r *RedisBackend) LoadKeys(ctx context.Context) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", r.key, err)
	}
	return keys, nil
}

// AppendKeys adds keys to the set.
func (r *RedisBackend) AppendKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := r.client.SAdd(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", r.key, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
