package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/internal/shared/cache"
)

// Integração: roda só com TEST_REDIS_ADDR
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := cache.ConnectRedis(addr)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	key := "settlement:test:" + uuid.NewString()
	a := NewRedisLock(rdb, key, time.Minute)
	b := NewRedisLock(rdb, key, time.Minute)

	release, err := a.Acquire(ctx)
	require.NoError(t, err)

	_, err = b.Acquire(ctx)
	require.ErrorIs(t, err, settlement.ErrLockHeld)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	releaseB, err := b.Acquire(ctx)
	require.NoError(t, err)
	defer releaseB(ctx)

	// release antigo não pode apagar o lock de outro dono
	require.NoError(t, release(ctx))
	exists, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)
}

func TestRedisLock_RenewsWhileHeld(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := cache.ConnectRedis(addr)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	key := "settlement:test:" + uuid.NewString()
	l := NewRedisLock(rdb, key, 300*time.Millisecond)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	// ciclo mais longo que o TTL: o lock continua de pé
	time.Sleep(time.Second)
	_, err = NewRedisLock(rdb, key, time.Minute).Acquire(ctx)
	require.ErrorIs(t, err, settlement.ErrLockHeld)

	require.NoError(t, release(ctx))
	exists, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, exists)
}

func TestNewRedisLockDefaults(t *testing.T) {
	l := NewRedisLock(nil, "", 0)
	assert.Equal(t, DefaultKey, l.key)
	assert.Equal(t, 5*time.Minute, l.ttl)
}
