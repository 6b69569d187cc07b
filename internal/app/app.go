// Package app assembles the coordinator and its collaborators for the api and
// worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/config"
	kafkax "github.com/ariefcatur/go-presale-orders/internal/kafka"
	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/memory"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/postgres"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/ariefcatur/go-presale-orders/internal/redisx"
	"github.com/ariefcatur/go-presale-orders/internal/sandbox"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Stack struct {
	Offers    *presale.Service
	Orders    *orders.Coordinator
	Scheduler *scheduler.Scheduler
	KV        kv.Store
	Metrics   *metrics.Metrics

	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

type backend struct {
	offers    presale.Repository
	purchases orders.Repository
	refunds   orders.RefundRepository
	tx        orders.Transactor
	kv        kv.Store
	timers    scheduler.TimerStore
	events    orders.Publisher
}

// Build wires the stack for cfg.Store. "memory" keeps everything in process and
// logs events; "postgres" uses Postgres, Redis and Kafka.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*Stack, error) {
	st := &Stack{Metrics: m}
	var (
		b   backend
		err error
	)
	switch cfg.Store {
	case "memory":
		b = memoryBackend(log)
	case "postgres":
		b, err = st.durableBackend(ctx, cfg, log)
	default:
		err = fmt.Errorf("app: unknown store %q", cfg.Store)
	}
	if err != nil {
		st.Close()
		return nil, err
	}

	st.KV = b.kv
	st.Scheduler = scheduler.New(b.timers, log, m)
	st.Offers = presale.NewService(b.offers, b.purchases, log)
	st.Orders = orders.NewCoordinator(orders.Deps{
		Orders:      b.purchases,
		Refunds:     b.refunds,
		Tx:          b.tx,
		Inventory:   presale.NewLedger(b.offers, b.purchases, m),
		Locks:       lock.NewManager(b.kv),
		Idempotency: b.kv,
		Timers:      st.Scheduler,
		Settlement:  sandbox.NewSettlement(log),
		Minter:      sandbox.NewMinter(log),
		Events:      b.events,
		Log:         log,
		Metrics:     m,
	}, orders.Config{
		PaymentGrace:     cfg.PaymentGrace,
		AutoConfirmAfter: cfg.AutoConfirmAfter,
		LockTTL:          cfg.LockTTL,
		LockWait:         cfg.LockTTL / 2,
		Retry: orders.RetryPolicy{
			MaxAttempts: cfg.ExternalMaxAttempts,
			CallTimeout: cfg.ExternalCallTimeout,
		},
	})
	st.Orders.RegisterTimers(st.Scheduler)
	return st, nil
}

func memoryBackend(log *zap.Logger) backend {
	store := memory.NewStore()
	return backend{
		offers:    memory.NewOffers(store),
		purchases: memory.NewOrders(store),
		refunds:   memory.NewRefunds(store),
		tx:        memory.NewTx(store),
		kv:        kv.NewMemory(),
		timers:    scheduler.NewMemoryStore(),
		events:    logPublisher{log: log.Named("events")},
	}
}

func (st *Stack) durableBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (backend, error) {
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return backend{}, fmt.Errorf("app: postgres: %w", err)
	}
	st.closers = append(st.closers, pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return backend{}, err
	}

	rdb := redisx.New(cfg.RedisAddr)
	st.closers = append(st.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return backend{}, fmt.Errorf("app: redis: %w", err)
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, log)
	prod.Start(context.WithoutCancel(ctx))
	st.closers = append(st.closers, func() {
		prod.Close()
		prod.WaitClosed()
	})

	return backend{
		offers:    &postgres.OfferRepo{DB: pool},
		purchases: &postgres.OrderRepo{DB: pool},
		refunds:   &postgres.RefundRepo{DB: pool},
		tx:        postgres.NewTxManager(pool, 3, log),
		kv:        redisx.NewStore(rdb),
		timers:    redisx.NewTimers(rdb),
		events:    kafkax.NewEventPublisher(prod, cfg.ServiceName),
	}, nil
}

// logPublisher stands in for Kafka in a single-process deployment.
type logPublisher struct{ log *zap.Logger }

func (p logPublisher) Publish(_ context.Context, ev orders.Event) error {
	p.log.Info("order event",
		zap.String("event", ev.Type),
		zap.String("order_id", ev.Order.ID),
		zap.String("status", string(ev.Order.Status)),
		zap.String("reason", ev.Reason),
	)
	return nil
}

// RunSweepers fires due order timers and moves offers across their sale window
// until ctx ends.
func (s *Stack) RunSweepers(ctx context.Context, interval time.Duration, log *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Scheduler.Run(ctx, interval)
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				activated, ended, err := s.Offers.SyncWindows(ctx)
				if err != nil && ctx.Err() == nil {
					log.Warn("window sync failed", zap.Error(err))
					continue
				}
				if activated+ended > 0 {
					log.Info("offer windows synced", zap.Int("activated", activated), zap.Int("ended", ended))
				}
			}
		}
	})
	return g.Wait()
}
