package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLocker(rdb, zap.NewNop())
	l.ttl = ttl
	return l, mr
}

func TestRedisLocker_ExclusivePerKey(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "bot-1")
	require.NoError(t, err)

	unlockOther, err := l.Lock(ctx, "bot-2")
	require.NoError(t, err)
	unlockOther()

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "bot-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.False(t, mr.Exists(redisLockPrefix+"bot-1"))

	unlock, err = l.Lock(ctx, "bot-1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_RenewedWhileHeld(t *testing.T) {
	ttl := 300 * time.Millisecond
	l, mr := newTestRedisLocker(t, ttl)
	ctx := context.Background()
	key := redisLockPrefix + "bot-1"

	unlock, err := l.Lock(ctx, "bot-1")
	require.NoError(t, err)

	// Far past the TTL in total, but never more than half of it between renewals.
	for range 6 {
		mr.FastForward(ttl / 2)
		require.Eventually(t, func() bool { return mr.TTL(key) == ttl }, time.Second, 10*time.Millisecond)
	}
	require.True(t, mr.Exists(key))

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "bot-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a held lock must not be granted twice")

	unlock()
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Second)
	key := redisLockPrefix + "bot-1"

	unlock, err := l.Lock(context.Background(), "bot-1")
	require.NoError(t, err)

	// Another holder took over after expiry; releasing must leave it alone.
	require.NoError(t, mr.Set(key, "someone-else"))
	unlock()

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
