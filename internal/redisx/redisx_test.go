package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStoreSetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)

	ok, err := s.SetNX(ctx, "lock:order:1", "tok", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "lock:order:1", "other", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = s.SetNX(ctx, "lock:order:1", "other", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := s.Get(ctx, "lock:order:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "other", v)

	_, found, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)
	_, _ = s.SetNX(ctx, "k", "tok-1", time.Minute)

	ok, err := s.CompareAndDelete(ctx, "k", "tok-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("k"))

	ok, err = s.CompareAndDelete(ctx, "k", "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("k"))
}

func TestStoreCompareAndExpire(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestClient(t)
	s := NewStore(rdb)
	_, _ = s.SetNX(ctx, "k", "tok", time.Second)

	ok, err := s.CompareAndExpire(ctx, "k", "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	mr.FastForward(30 * time.Second)
	assert.True(t, mr.Exists("k"))

	ok, err = s.CompareAndExpire(ctx, "k", "nope", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimersDueAndClaim(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestClient(t)
	tm := NewTimers(rdb)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tm.Add(ctx, "payment_timeout:o-1", base.Add(time.Minute)))
	require.NoError(t, tm.Add(ctx, "auto_confirm:o-2", base.Add(time.Hour)))

	due, err := tm.Due(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = tm.Due(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"payment_timeout:o-1"}, due)

	ok, err := tm.Claim(ctx, "payment_timeout:o-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tm.Claim(ctx, "payment_timeout:o-1")
	require.NoError(t, err)
	assert.False(t, ok, "a job is claimed once")

	require.NoError(t, tm.Remove(ctx, "auto_confirm:o-2"))
	due, err = tm.Due(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
