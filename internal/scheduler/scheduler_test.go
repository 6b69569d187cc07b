package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) handle(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, orderID)
	return r.err
}

func TestSweepFiresDueJobsOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := New(store, nil, nil).WithClock(func() time.Time { return now })

	pay := &recorder{}
	s.Handle(KindPaymentTimeout, pay.handle)

	require.NoError(t, s.Schedule(ctx, KindPaymentTimeout, "o-1", now.Add(30*time.Minute)))
	require.NoError(t, s.Schedule(ctx, KindPaymentTimeout, "o-2", now.Add(time.Hour)))

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = now.Add(30*time.Minute + time.Second)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"o-1"}, pay.calls)

	n, _ = s.Sweep(ctx)
	assert.Equal(t, 0, n, "fired job is gone")
}

func TestCancelDisarms(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := New(store, nil, nil).WithClock(func() time.Time { return now })
	rec := &recorder{}
	s.Handle(KindAutoConfirm, rec.handle)

	require.NoError(t, s.Schedule(ctx, KindAutoConfirm, "o-1", now))
	require.NoError(t, s.Cancel(ctx, KindAutoConfirm, "o-1"))
	require.NoError(t, s.Cancel(ctx, KindAutoConfirm, "never-armed"))

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.calls)
}

func TestSweepRearmsOnContention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := New(store, nil, nil).WithClock(func() time.Time { return now })
	rec := &recorder{err: apperr.New(apperr.KindContention, "LOCK_CONTENTION", "busy")}
	s.Handle(KindPaymentTimeout, rec.handle)

	require.NoError(t, s.Schedule(ctx, KindPaymentTimeout, "o-1", now))
	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	at, ok := store.Pending(Member(KindPaymentTimeout, "o-1"))
	require.True(t, ok, "contended job must be re-armed")
	assert.Equal(t, now.Add(s.retryDelay), at)
}

func TestSweepDropsPermanentFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := New(store, nil, nil).WithClock(func() time.Time { return now })
	rec := &recorder{err: apperr.Wrap(apperr.KindConflict, "INVALID_TRANSITION", errors.New("nope"))}
	s.Handle(KindPaymentTimeout, rec.handle)

	require.NoError(t, s.Schedule(ctx, KindPaymentTimeout, "o-1", now))
	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	_, ok := store.Pending(Member(KindPaymentTimeout, "o-1"))
	assert.False(t, ok)
}

func TestRescheduleMovesFireTime(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	s := New(store, nil, nil).WithClock(func() time.Time { return now })

	require.NoError(t, s.Schedule(ctx, KindAutoConfirm, "o-1", now.Add(time.Hour)))
	require.NoError(t, s.Schedule(ctx, KindAutoConfirm, "o-1", now.Add(2*time.Hour)))

	at, ok := store.Pending(Member(KindAutoConfirm, "o-1"))
	require.True(t, ok)
	assert.Equal(t, now.Add(2*time.Hour), at)
}

func TestParseMember(t *testing.T) {
	kind, id, err := parseMember("auto_confirm:abc-123")
	require.NoError(t, err)
	assert.Equal(t, KindAutoConfirm, kind)
	assert.Equal(t, "abc-123", id)

	_, _, err = parseMember("garbage")
	assert.Error(t, err)
}
