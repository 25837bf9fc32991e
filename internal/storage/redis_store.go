package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a7mdelbanna/clients-plus-gateway/internal/observability"
)

// RedisStore is the ephemeral tier. Entries carry their TTL natively, so
// expiry of challenge state and session-only credentials is enforced by the
// store rather than by readers.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sessiond"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Name() string { return "ephemeral" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		observability.RecordStorageOperation(ctx, s.Name(), "get", "not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		observability.RecordStorageOperation(ctx, s.Name(), "get", "error")
		return nil, err
	}
	observability.RecordStorageOperation(ctx, s.Name(), "get", "success")
	return raw, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.client.Set(ctx, s.key(key), value, ttl).Err()
	if err != nil {
		observability.RecordStorageOperation(ctx, s.Name(), "set", "error")
		return err
	}
	observability.RecordStorageOperation(ctx, s.Name(), "set", "success")
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.key(key)).Err()
	if err != nil {
		observability.RecordStorageOperation(ctx, s.Name(), "delete", "error")
		return err
	}
	observability.RecordStorageOperation(ctx, s.Name(), "delete", "success")
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}
