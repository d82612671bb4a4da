package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in redis with native key expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Store backed by the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the stored bytes; redis.Nil becomes ErrMiss.
func (s *RedisStore) Get(ctx context.Context, tenantID, key string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, Key(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set writes the value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, tenantID, key string, value json.RawMessage, ttl time.Duration) error {
	return s.client.Set(ctx, Key(tenantID, key), []byte(value), ttl).Err()
}
