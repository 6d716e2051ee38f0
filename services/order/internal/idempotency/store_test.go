package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("ORDER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORDER_TEST_REDIS_ADDR is required for tests")
	}
	rdb := NewRedisClient(addr)
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb, time.Minute)
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func TestRedisStore_RememberAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	key := uuid.NewString()

	_, found, err := s.Lookup(ctx, user, key)
	require.NoError(t, err)
	assert.False(t, found)

	first := uuid.New()
	require.NoError(t, s.Remember(ctx, user, key, first))
	require.NoError(t, s.Remember(ctx, user, key, uuid.New()))

	got, found, err := s.Lookup(ctx, user, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, got)

	_, found, err = s.Lookup(ctx, uuid.New(), key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisStore_DefaultTTL(t *testing.T) {
	t.Parallel()

	s := NewRedisStore(nil, 0)
	assert.Equal(t, DefaultTTL, s.ttl)
}
