package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in redis so every instance shares the budget.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a limiter backed by the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// CheckRateLimit runs INCR and EXPIRE in one MULTI block. The key embeds the
// window start, so re-arming the expiry on each call never extends a window.
func (s *RedisStore) CheckRateLimit(ctx context.Context, tenantID, endpoint string, limit int, window time.Duration) (bool, error) {
	if err := Validate(tenantID, endpoint, limit, window); err != nil {
		return false, err
	}

	start := WindowStart(s.now(), window)
	key := Key(tenantID, endpoint, start)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, err
	}

	return incr.Val() <= int64(limit), nil
}
