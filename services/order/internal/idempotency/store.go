package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyCheckout = "idem:checkout:%s:%s"
	DefaultTTL  = 24 * time.Hour
)

// Store remembers which order a client-supplied idempotency key produced.
// Keys are scoped per user.
type Store interface {
	Lookup(ctx context.Context, userID uuid.UUID, key string) (uuid.UUID, bool, error)
	Remember(ctx context.Context, userID uuid.UUID, key string, orderID uuid.UUID) error
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Lookup(ctx context.Context, userID uuid.UUID, key string) (uuid.UUID, bool, error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(keyCheckout, userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry: %w", err)
	}
	return id, true, nil
}

// Remember keeps the first order recorded for a key.
func (s *RedisStore) Remember(ctx context.Context, userID uuid.UUID, key string, orderID uuid.UUID) error {
	return s.rdb.SetNX(ctx, fmt.Sprintf(keyCheckout, userID, key), orderID.String(), s.ttl).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)
