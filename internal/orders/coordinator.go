package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/logger"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"go.uber.org/zap"
)

type Config struct {
	PaymentGrace     time.Duration
	AutoConfirmAfter time.Duration
	LockTTL          time.Duration
	// LockWait bounds how long an operation waits for a busy order lock before
	// failing with lock.ErrNotAcquired.
	LockWait time.Duration
	Retry    RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.PaymentGrace <= 0 {
		c.PaymentGrace = 30 * time.Minute
	}
	if c.AutoConfirmAfter <= 0 {
		c.AutoConfirmAfter = 7 * 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.LockWait < 0 {
		c.LockWait = 0
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

type Deps struct {
	Orders      Repository
	Refunds     RefundRepository
	Tx          Transactor
	Inventory   Inventory
	Locks       *lock.Manager
	Idempotency kv.Store
	Timers      Timers
	Settlement  Settlement
	Minter      Minter
	Events      Publisher
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Coordinator is the order state machine. Every mutation holds the order lock,
// re-reads the order inside a transaction, checks the transition table, and runs
// the external side effect in that same transaction so a failure rolls the state
// write back.
type Coordinator struct {
	cfg        Config
	orders     Repository
	refunds    RefundRepository
	tx         Transactor
	inventory  Inventory
	locks      *lock.Manager
	idem       kv.Store
	timers     Timers
	settlement Settlement
	minter     Minter
	events     Publisher
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewCoordinator(d Deps, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("orders")
	r := &retrier{policy: cfg.Retry, metrics: d.Metrics, log: log}
	return &Coordinator{
		cfg:        cfg,
		orders:     d.Orders,
		refunds:    d.Refunds,
		tx:         d.Tx,
		inventory:  d.Inventory,
		locks:      d.Locks,
		idem:       d.Idempotency,
		timers:     d.Timers,
		settlement: retryingSettlement{inner: d.Settlement, r: r},
		minter:     retryingMinter{inner: d.Minter, r: r},
		events:     d.Events,
		log:        log,
		metrics:    d.Metrics,
		now:        time.Now,
	}
}

func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// withLock runs fn while holding key. Contention surfaces as lock.ErrNotAcquired.
func (c *Coordinator) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l, err := c.locks.AcquireWait(ctx, key, c.cfg.LockTTL, c.cfg.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			c.metrics.LockContention("order")
		}
		return err
	}
	defer func() {
		ok, rerr := l.Release(context.WithoutCancel(ctx))
		switch {
		case rerr != nil:
			c.log.Warn("lock release failed", zap.String("key", key), zap.Error(rerr))
		case !ok:
			c.log.Warn("lock expired before release", zap.String("key", key))
		}
	}()
	defer c.heartbeat(ctx, l)()
	return fn(ctx)
}

// heartbeat extends l every third of the lock ttl until the returned stop func is
// called. External calls inside a critical section may run longer than one ttl.
func (c *Coordinator) heartbeat(ctx context.Context, l *lock.Lock) (stop func()) {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(c.cfg.LockTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				ok, err := l.Extend(ctx)
				switch {
				case err != nil:
					c.log.Warn("lock extend failed", zap.String("key", l.Key()), zap.Error(err))
				case !ok:
					c.log.Warn("lock lost before extend", zap.String("key", l.Key()))
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// mutation describes one guarded order change.
type mutation struct {
	// check runs on the freshly locked order before anything changes. Returning
	// errNoop ends the mutation without writing.
	check func(o *Order) error
	to    Status
	// annotate adds audit metadata after the transition.
	annotate func(o *Order)
	// effect runs inside the transaction after the transition: ledger writes,
	// settlement and minting calls, timers.
	effect func(ctx context.Context, o *Order) error
}

var errNoop = errors.New("orders: no-op")

// apply executes m against orderID in one transaction. It reports noop=true when
// check asked to skip; the returned order is then the current stored state.
func (c *Coordinator) apply(ctx context.Context, orderID string, m mutation) (out *Order, noop bool, err error) {
	var from Status
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := c.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if m.check != nil {
			if err := m.check(o); err != nil {
				if errors.Is(err, errNoop) {
					out, noop = o, true
					return nil
				}
				return err
			}
		}
		from = o.Status
		if err := o.Transition(m.to, c.now().UTC()); err != nil {
			return err
		}
		if m.annotate != nil {
			m.annotate(o)
		}
		if m.effect != nil {
			if err := m.effect(ctx, o); err != nil {
				return err
			}
		}
		if err := c.orders.Update(ctx, o, from); err != nil {
			return err
		}
		c.metrics.Transition(string(from), string(m.to))
		out = o
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !noop {
		logger.FromContext(ctx, c.log).Info("order transitioned",
			zap.String("order_id", out.ID),
			zap.String("from", string(from)),
			zap.String("to", string(out.Status)),
		)
	}
	return out, noop, nil
}

// flagForReview marks an order whose side effect kept failing so an operator can
// follow up. The status is left at its last known good value.
func (c *Coordinator) flagForReview(ctx context.Context, orderID, reason string, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := c.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		o.setMeta(MetaNeedsReview, "true")
		o.setMeta(MetaReviewReason, fmt.Sprintf("%s: %v", reason, cause))
		o.UpdatedAt = c.now().UTC()
		return c.orders.Update(ctx, o, o.Status)
	})
	if err != nil {
		c.log.Error("flag for review failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	c.log.Warn("order flagged for review", zap.String("order_id", orderID), zap.String("reason", reason), zap.Error(cause))
}

func (c *Coordinator) flagOnDependency(ctx context.Context, orderID, reason string, err error) {
	if apperr.KindOf(err) == apperr.KindDependency {
		c.flagForReview(ctx, orderID, reason, err)
	}
}

// disarm cancels a timer after commit. A leftover timer is harmless because the
// fired handler re-checks state, so failures are only logged.
func (c *Coordinator) disarm(ctx context.Context, kind scheduler.Kind, orderID string) {
	if err := c.timers.Cancel(context.WithoutCancel(ctx), kind, orderID); err != nil {
		c.log.Warn("timer disarm failed", zap.String("kind", string(kind)), zap.String("order_id", orderID), zap.Error(err))
	}
}

func (c *Coordinator) emit(ctx context.Context, typ string, o *Order, reason string) {
	if c.events == nil || o == nil {
		return
	}
	ev := Event{Type: typ, Order: o.Clone(), Reason: reason, OccurredAt: c.now().UTC()}
	if err := c.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		c.log.Warn("event publish failed", zap.String("event", typ), zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return c.orders.Get(ctx, orderID)
}

func (c *Coordinator) GetRefund(ctx context.Context, refundID string) (*Refund, error) {
	return c.refunds.Get(ctx, refundID)
}

func (c *Coordinator) GetOrderStats(ctx context.Context, f StatsFilter) (*Stats, error) {
	st, err := c.orders.Stats(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("orders: stats: %w", err)
	}
	return st, nil
}

// RegisterTimers wires the fired-timer handlers into s.
func (c *Coordinator) RegisterTimers(s *scheduler.Scheduler) {
	s.Handle(scheduler.KindPaymentTimeout, c.HandlePaymentTimeout)
	s.Handle(scheduler.KindAutoConfirm, c.AutoConfirmDelivery)
}
