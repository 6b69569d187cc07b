package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })

	ok, err := m.SetNX(ctx, "k", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.SetNX(ctx, "k", "b", time.Second)
	assert.False(t, ok, "held key must not be overwritten")

	now = now.Add(time.Second)
	ok, _ = m.SetNX(ctx, "k", "b", time.Second)
	assert.True(t, ok, "expired key is free again")

	v, found, _ := m.Get(ctx, "k")
	assert.True(t, found)
	assert.Equal(t, "b", v)
}

func TestMemoryCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.SetNX(ctx, "k", "token-1", 0)

	ok, _ := m.CompareAndDelete(ctx, "k", "token-2")
	assert.False(t, ok)
	_, found, _ := m.Get(ctx, "k")
	assert.True(t, found)

	ok, _ = m.CompareAndDelete(ctx, "k", "token-1")
	assert.True(t, ok)
	_, found, _ = m.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryCompareAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })
	_, _ = m.SetNX(ctx, "k", "t", time.Second)

	ok, _ := m.CompareAndExpire(ctx, "k", "other", time.Minute)
	assert.False(t, ok)
	ok, _ = m.CompareAndExpire(ctx, "k", "t", time.Minute)
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	_, found, _ := m.Get(ctx, "k")
	assert.True(t, found)
}

func TestMemorySetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.SetNX(ctx, "k", "v", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
