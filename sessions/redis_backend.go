package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKeyPrefix = "oauth-provider:session:"

var _ Backend = (*RedisBackend)(nil)

// RedisBackend stores each session as a hash whose expiry is refreshed on every write.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBackend connects to a single Redis node and verifies it with a PING.
func NewRedisBackend(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisBackendWithClient(client, DefaultRedisKeyPrefix, ttl), nil
}

// NewRedisBackendWithClient wraps an existing client, for example one pointed at miniredis.
func NewRedisBackendWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (b *RedisBackend) key(sessionID string) string {
	return b.keyPrefix + sessionID
}

func (b *RedisBackend) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	v, err := b.client.HGet(ctx, b.key(sessionID), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, sessionID, key string, value []byte) error {
	k := b.key(sessionID)
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, k, key, value)
	pipe.Expire(ctx, k, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.HDel(ctx, b.key(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, sessionID, prefix string) error {
	fields, err := b.client.HKeys(ctx, b.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis hkeys: %w", err)
	}
	var matched []string
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) {
			matched = append(matched, f)
		}
	}
	return b.Delete(ctx, sessionID, matched...)
}

func (b *RedisBackend) Destroy(ctx context.Context, sessionID string) error {
	if err := b.client.Del(ctx, b.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Rename keeps the hash's remaining TTL.
func (b *RedisBackend) Rename(ctx context.Context, oldID, newID string) error {
	err := b.client.Rename(ctx, b.key(oldID), b.key(newID)).Err()
	if err != nil && !strings.Contains(err.Error(), "no such key") {
		return fmt.Errorf("redis rename: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
