// Package scheduler arms and fires deferred per-order events such as the payment
// deadline and the delivery auto-confirm.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"go.uber.org/zap"
)

type Kind string

const (
	KindPaymentTimeout Kind = "payment_timeout"
	KindAutoConfirm    Kind = "auto_confirm"
)

// TimerStore persists pending jobs keyed by an opaque member string.
type TimerStore interface {
	Add(ctx context.Context, member string, fireAt time.Time) error
	Remove(ctx context.Context, member string) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Claim removes member and reports whether this caller was the one to remove it.
	Claim(ctx context.Context, member string) (bool, error)
}

// Handler reacts to a fired job. It must re-check the order's current state and be a
// no-op when the order already left the watched state.
type Handler func(ctx context.Context, orderID string) error

type Scheduler struct {
	store   TimerStore
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[Kind]Handler

	batch      int
	retryDelay time.Duration
}

func New(store TimerStore, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:      store,
		log:        log.Named("scheduler"),
		metrics:    m,
		now:        time.Now,
		handlers:   make(map[Kind]Handler),
		batch:      100,
		retryDelay: 2 * time.Second,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Handle registers the handler for kind, replacing any previous one.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.mu.Lock()
	s.handlers[kind] = h
	s.mu.Unlock()
}

func member(kind Kind, orderID string) string { return string(kind) + ":" + orderID }

func parseMember(m string) (Kind, string, error) {
	kind, id, ok := strings.Cut(m, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("scheduler: malformed job %q", m)
	}
	return Kind(kind), id, nil
}

// Schedule arms (or re-arms) the kind timer for orderID.
func (s *Scheduler) Schedule(ctx context.Context, kind Kind, orderID string, fireAt time.Time) error {
	if err := s.store.Add(ctx, member(kind, orderID), fireAt); err != nil {
		return fmt.Errorf("scheduler: schedule %s for %s: %w", kind, orderID, err)
	}
	return nil
}

// Cancel disarms a pending timer. Cancelling a timer that is not armed is not an error.
func (s *Scheduler) Cancel(ctx context.Context, kind Kind, orderID string) error {
	if err := s.store.Remove(ctx, member(kind, orderID)); err != nil {
		return fmt.Errorf("scheduler: cancel %s for %s: %w", kind, orderID, err)
	}
	return nil
}

// Sweep dispatches every job due at the current time and returns how many it handled.
// Jobs whose handler fails with a transient error are re-armed retryDelay later.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.Due(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list due: %w", err)
	}

	fired := 0
	for _, m := range due {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		ok, err := s.store.Claim(ctx, m)
		if err != nil {
			s.log.Warn("claim failed", zap.String("job", m), zap.Error(err))
			continue
		}
		if !ok {
			// another sweeper owns it
			continue
		}
		s.dispatch(ctx, m, now)
		fired++
	}
	return fired, nil
}

func (s *Scheduler) dispatch(ctx context.Context, m string, now time.Time) {
	kind, orderID, err := parseMember(m)
	if err != nil {
		s.log.Error("drop job", zap.String("job", m), zap.Error(err))
		return
	}
	s.mu.RLock()
	h, ok := s.handlers[kind]
	s.mu.RUnlock()
	if !ok {
		s.log.Error("no handler for job", zap.String("kind", string(kind)), zap.String("order_id", orderID))
		s.metrics.TimerFired(string(kind), "unhandled")
		return
	}

	log := s.log.With(zap.String("kind", string(kind)), zap.String("order_id", orderID))
	if err := h(ctx, orderID); err != nil {
		if retryable(err) {
			if aerr := s.store.Add(ctx, m, now.Add(s.retryDelay)); aerr != nil {
				log.Error("re-arm failed, timer lost", zap.Error(aerr), zap.NamedError("cause", err))
			} else {
				log.Warn("handler failed, re-armed", zap.Error(err))
			}
			s.metrics.TimerFired(string(kind), "retry")
			return
		}
		log.Error("handler failed", zap.Error(err))
		s.metrics.TimerFired(string(kind), "error")
		return
	}
	log.Info("timer fired")
	s.metrics.TimerFired(string(kind), "ok")
}

func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindContention, apperr.KindDependency, apperr.KindInternal:
		return true
	default:
		return false
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
