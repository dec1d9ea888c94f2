package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore keeps revocation entries in Redis using native key expiry.
type RedisRevocationStore struct {
	client redis.UniversalClient
}

// NewRedisRevocationStore connects to redisURL and verifies the connection.
func NewRedisRevocationStore(ctx context.Context, redisURL string) (*RedisRevocationStore, error) {
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("revocation_store.open.redis: %w", parseErr)
	}
	client := redis.NewClient(options)
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation_store.ping.redis: %w", pingErr)
	}
	return NewRedisRevocationStoreFromClient(client), nil
}

// NewRedisRevocationStoreFromClient wraps an existing client.
func NewRedisRevocationStoreFromClient(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// Put sets key with an expiry of ttl.
func (store *RedisRevocationStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("revocation_store.put.redis: %w", ErrRevocationKeyEmpty)
	}
	if ttl <= 0 {
		return fmt.Errorf("revocation_store.put.redis: %w", ErrRevocationTTLInvalid)
	}
	if err := store.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("revocation_store.put.redis: %w", err)
	}
	return nil
}

// Get reads key; redis.Nil maps to ErrRevocationKeyNotFound.
func (store *RedisRevocationStore) Get(ctx context.Context, key string) (string, error) {
	value, err := store.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("revocation_store.get.redis: %w", ErrRevocationKeyNotFound)
		}
		return "", fmt.Errorf("revocation_store.get.redis: %w", err)
	}
	return value, nil
}

// Delete removes key; DEL is atomic so concurrent callers see at most one success.
func (store *RedisRevocationStore) Delete(ctx context.Context, key string) error {
	removed, err := store.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("revocation_store.delete.redis: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("revocation_store.delete.redis: %w", ErrRevocationKeyNotFound)
	}
	return nil
}

// Close closes the Redis client.
func (store *RedisRevocationStore) Close() error {
	return store.client.Close()
}
