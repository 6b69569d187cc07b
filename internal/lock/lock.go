// Package lock provides short-lived, token-guarded mutual exclusion on top of a
// kv.Store. A lock is only ever released by the holder whose token is stored.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/google/uuid"
)

var ErrNotAcquired = apperr.New(apperr.KindContention, "LOCK_CONTENTION", "lock: resource busy, try again shortly")

const (
	keyOrder    = "lock:order:%s"
	keyPurchase = "lock:purchase:%s:%s"
)

func OrderKey(orderID string) string             { return fmt.Sprintf(keyOrder, orderID) }
func PurchaseKey(offerID, buyerID string) string { return fmt.Sprintf(keyPurchase, offerID, buyerID) }

type Manager struct {
	store kv.Store
	// retryEvery is the polling step of AcquireWait.
	retryEvery time.Duration
}

func NewManager(store kv.Store) *Manager {
	return &Manager{store: store, retryEvery: 25 * time.Millisecond}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	m     *Manager
	key   string
	token string
	ttl   time.Duration
}

func (l *Lock) Key() string   { return l.key }
func (l *Lock) Token() string { return l.token }

// Acquire sets key to a fresh token if it is absent. It fails fast with ErrNotAcquired.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := m.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{m: m, key: key, token: token, ttl: ttl}, nil
}

// AcquireWait retries Acquire until it succeeds, wait elapses or ctx is done.
func (m *Manager) AcquireWait(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		l, err := m.Acquire(ctx, key, ttl)
		if err != ErrNotAcquired {
			return l, err
		}
		if !time.Now().Add(m.retryEvery).Before(deadline) {
			return nil, ErrNotAcquired
		}
		t := time.NewTimer(m.retryEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Release deletes the key only while it still carries this lock's token. It returns
// false when the lock had already expired and possibly been taken by someone else.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	if l == nil {
		return false, nil
	}
	ok, err := l.m.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return false, fmt.Errorf("lock: release %s: %w", l.key, err)
	}
	return ok, nil
}

// Extend pushes the expiry out by the original ttl while the lock is still ours.
func (l *Lock) Extend(ctx context.Context) (bool, error) {
	ok, err := l.m.store.CompareAndExpire(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lock: extend %s: %w", l.key, err)
	}
	return ok, nil
}
