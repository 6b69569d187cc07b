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
	"github.com/ariefcatur/go-presale-orders/internal/httpx"
	"github.com/ariefcatur/go-presale-orders/internal/logger"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.MustNew(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Coordinator and stores
	stack, err := app.Build(ctx, cfg, log, m)
	if err != nil {
		log.Fatal("build failed", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer stack.Close()

	// Router & handlers
	router := httpx.NewRouter(log, reg)
	(&httpx.OffersHandler{Offers: stack.Offers}).Register(router)
	(&httpx.OrdersHandler{Orders: stack.Orders}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A single process has no worker beside it, so it sweeps timers itself.
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if cfg.Store != "memory" {
			return
		}
		_ = stack.RunSweepers(ctx, cfg.SweepInterval, log.Named("sweeper"))
	}()

	go func() {
		log.Info("http_server_start", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	<-sweepDone
}
