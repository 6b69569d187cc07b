package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/ariefcatur/go-presale-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	l, err := m.Acquire(ctx, OrderKey("o-1"), time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, OrderKey("o-1"), time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	ok, err := l.Release(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	l2, err := m.Acquire(ctx, OrderKey("o-1"), time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, l.Token(), l2.Token())
}

func TestReleaseAfterExpiryDoesNotStealNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemory().WithClock(func() time.Time { return now })
	m := NewManager(store)

	stale, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	ok, err := stale.Release(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stale holder must not release a reclaimed lock")

	v, found, _ := store.Get(ctx, "k")
	assert.True(t, found)
	assert.Equal(t, fresh.Token(), v)
}

func TestAcquireWait(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemory())

	held, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_, _ = held.Release(ctx)
	}()

	l, err := m.AcquireWait(ctx, "k", time.Minute, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = m.AcquireWait(ctx, "k", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedisBackedLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	m := NewManager(redisx.NewStore(rdb))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, OrderKey("o-9"), time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(kv.NewMemory().WithClock(func() time.Time { return now }))

	l, err := m.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	now = now.Add(8 * time.Second)
	ok, err := l.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(8 * time.Second)
	_, err = m.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
