package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetExpiry(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()

	now := time.Now()
	ms.SetClock(func() time.Time { return now })

	require.NoError(t, ms.Set(ctx, "k", []byte("v"), 10*time.Second))
	val, err := ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	now = now.Add(11 * time.Second)
	val, err = ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestMemoryStore_WindowAdmit_Boundary(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()
	const limit = 5

	for i := 0; i < limit; i++ {
		admitted, remaining, err := ms.WindowAdmit(ctx, "w", time.Minute, limit, "")
		require.NoError(t, err)
		assert.True(t, admitted)
		assert.Equal(t, limit-i-1, remaining)
	}
	admitted, remaining, err := ms.WindowAdmit(ctx, "w", time.Minute, limit, "")
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, 0, remaining)
}

func TestMemoryStore_WindowAdmit_SlidesWithClock(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	now := base
	ms.SetClock(func() time.Time { return now })

	admitted, _, err := ms.WindowAdmit(ctx, "w", time.Minute, 1, "")
	require.NoError(t, err)
	require.True(t, admitted)

	now = base.Add(30 * time.Second)
	admitted, _, err = ms.WindowAdmit(ctx, "w", time.Minute, 1, "")
	require.NoError(t, err)
	assert.False(t, admitted, "still inside the trailing window")

	now = base.Add(61 * time.Second)
	admitted, _, err = ms.WindowAdmit(ctx, "w", time.Minute, 1, "")
	require.NoError(t, err)
	assert.True(t, admitted, "entry aged out of the trailing window")
}

func TestMemoryStore_ConcurrentWindowAdmit(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()
	const limit = 50
	const attempts = 200

	var wg sync.WaitGroup
	admittedCh := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, _, err := ms.WindowAdmit(ctx, "w", time.Minute, limit, "")
			require.NoError(t, err)
			admittedCh <- admitted
		}()
	}
	wg.Wait()
	close(admittedCh)

	total := 0
	for admitted := range admittedCh {
		if admitted {
			total++
		}
	}
	assert.Equal(t, limit, total, "exactly limit admissions under concurrency")
}

func TestMemoryStore_FloatAndHashOps(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()

	total, err := ms.IncrByFloat(ctx, "n", 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, total, 1e-9)
	total, err = ms.IncrByFloat(ctx, "n", 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.75, total, 1e-9)

	require.NoError(t, ms.HIncrBy(ctx, "h", "requests", 2))
	require.NoError(t, ms.HIncrByFloat(ctx, "h", "cost", 0.5))
	h, err := ms.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "2", h["requests"])
	assert.Equal(t, "0.5", h["cost"])
}

func TestMemoryStore_Keys(t *testing.T) {
	ms := NewMemory()
	ctx := context.Background()

	require.NoError(t, ms.Set(ctx, "cost:daily:2026-09-01", []byte("1"), 0))
	require.NoError(t, ms.HIncrBy(ctx, "cost:model:gpt-4o:2026-09-01", "requests", 1))

	keys, err := ms.Keys(ctx, "cost:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
