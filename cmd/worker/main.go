package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/app"
	"github.com/ariefcatur/go-presale-orders/internal/config"
	kafkax "github.com/ariefcatur/go-presale-orders/internal/kafka"
	"github.com/ariefcatur/go-presale-orders/internal/logger"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/payments"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.MustNew(cfg.ServiceName+"-worker", cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	stack, err := app.Build(ctx, cfg, log, m)
	if err != nil {
		log.Fatal("build failed", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer stack.Close()

	svc := &payments.Service{
		Payer: stack.Orders,
		Dedup: stack.KV,
		Group: cfg.PaymentGroup,
		Log:   log.Named("payments"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentGroup, orders.TopicPaymentConfirmed, cfg.Workers, log.Named("consumer"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("payment consumer started",
			zap.String("group", cfg.PaymentGroup),
			zap.String("topic", orders.TopicPaymentConfirmed),
			zap.Int("workers", cfg.Workers),
		)
		return cons.Start(gctx, svc.HandlePaymentConfirmed)
	})
	g.Go(func() error {
		return stack.RunSweepers(gctx, cfg.SweepInterval, log.Named("sweeper"))
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker exit", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
