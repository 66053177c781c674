package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	return NewRedisFromClient(client, "test"), s
}

func TestRedisStore_GetSet(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()

	val, err := rs.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, val, "miss must return nil, nil")

	require.NoError(t, rs.Set(ctx, "k", []byte("v"), time.Minute))
	val, err = rs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.Set(ctx, "k", []byte("v"), 10*time.Second))
	mr.FastForward(11 * time.Second)

	val, err := rs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore_IncrByFloat(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()

	total, err := rs.IncrByFloat(ctx, "cost:daily:2026-09-01", 0.0025)
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, total, 1e-9)

	total, err = rs.IncrByFloat(ctx, "cost:daily:2026-09-01", 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 0.0035, total, 1e-9)

	read, err := rs.GetFloat(ctx, "cost:daily:2026-09-01")
	require.NoError(t, err)
	assert.InDelta(t, 0.0035, read, 1e-9)
}

func TestRedisStore_HashIncrements(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()
	key := "cost:model:gpt-4o:2026-09-01"

	require.NoError(t, rs.HIncrBy(ctx, key, "requests", 1))
	require.NoError(t, rs.HIncrBy(ctx, key, "requests", 1))
	require.NoError(t, rs.HIncrByFloat(ctx, key, "cost", 0.01))

	h, err := rs.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "2", h["requests"])
	assert.Equal(t, "0.01", h["cost"])
}

func TestRedisStore_WindowAdmit_Boundary(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()
	const limit = 3

	for i := 0; i < limit; i++ {
		admitted, remaining, err := rs.WindowAdmit(ctx, "ratelimit:c1:min", time.Minute, limit, fmt.Sprintf("m-%d", i))
		require.NoError(t, err)
		assert.True(t, admitted, "request %d should be admitted", i+1)
		assert.Equal(t, limit-i-1, remaining)
	}

	admitted, remaining, err := rs.WindowAdmit(ctx, "ratelimit:c1:min", time.Minute, limit, "m-over")
	require.NoError(t, err)
	assert.False(t, admitted, "request limit+1 must be rejected")
	assert.Equal(t, 0, remaining)
}

func TestRedisStore_WindowAdmit_SameSecondCounts(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()

	// Two admissions inside the same second must both consume slots.
	_, _, err := rs.WindowAdmit(ctx, "ratelimit:c2:min", time.Minute, 2, "a")
	require.NoError(t, err)
	_, _, err = rs.WindowAdmit(ctx, "ratelimit:c2:min", time.Minute, 2, "b")
	require.NoError(t, err)

	admitted, _, err := rs.WindowAdmit(ctx, "ratelimit:c2:min", time.Minute, 2, "c")
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestRedisStore_WindowAdmit_WindowElapses(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()

	admitted, _, err := rs.WindowAdmit(ctx, "ratelimit:c3:min", time.Minute, 1, "a")
	require.NoError(t, err)
	require.True(t, admitted)

	admitted, _, err = rs.WindowAdmit(ctx, "ratelimit:c3:min", time.Minute, 1, "b")
	require.NoError(t, err)
	require.False(t, admitted)

	mr.FastForward(61 * time.Second)

	admitted, _, err = rs.WindowAdmit(ctx, "ratelimit:c3:min", time.Minute, 1, "c")
	require.NoError(t, err)
	assert.True(t, admitted, "admission resumes after the window elapses")
}

func TestRedisStore_WindowCount_DoesNotMutate(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()

	_, _, err := rs.WindowAdmit(ctx, "ratelimit:c4:min", time.Minute, 10, "a")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		count, err := rs.WindowCount(ctx, "ratelimit:c4:min", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
}

func TestRedisStore_Keys(t *testing.T) {
	rs, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rs.Set(ctx, "cache:aaa", []byte("1"), time.Minute))
	require.NoError(t, rs.Set(ctx, "cache:bbb", []byte("2"), time.Minute))
	require.NoError(t, rs.Set(ctx, "other", []byte("3"), time.Minute))

	keys, err := rs.Keys(ctx, "cache:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cache:aaa", "cache:bbb"}, keys)
}
