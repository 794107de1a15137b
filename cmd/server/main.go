// Command server wires the async job engine into a standalone HTTP
// process: config, store selection, the Job Manager, the Producer-Consumer
// pipeline, Distributed Recovery, and the Submit/Status endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asyncengine/engine/internal/clock"
	"github.com/asyncengine/engine/internal/codec"
	"github.com/asyncengine/engine/internal/config"
	"github.com/asyncengine/engine/internal/engine"
	"github.com/asyncengine/engine/internal/httpapi"
	"github.com/asyncengine/engine/internal/job"
	"github.com/asyncengine/engine/internal/logging"
	"github.com/asyncengine/engine/internal/manager"
	"github.com/asyncengine/engine/internal/metrics"
	"github.com/asyncengine/engine/internal/recovery"
	"github.com/asyncengine/engine/internal/registry"
	"github.com/asyncengine/engine/internal/store"
	"github.com/asyncengine/engine/internal/store/memstore"
	"github.com/asyncengine/engine/internal/store/redisstore"
)

// echoRequest/echoResponse are a small sample handler wired here so the
// server boots with at least one registered job name.
type echoRequest struct {
	V int `json:"v"`
}

type echoResponse struct {
	Out int `json:"out"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", logging.ErrAttr(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewSlog(slog.Default())
	clk := clock.Real{}

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg)

	jobStore, locker, err := buildStore(cfg, clk)
	if err != nil {
		return err
	}

	mgr := manager.New(jobStore, clk, logger, rec, manager.Config{
		DefaultMaxRetries:     cfg.JobManager.DefaultMaxRetries,
		RetryDelayBaseSeconds: cfg.JobManager.RetryDelayBaseSeconds,
	})

	handlers := registry.New()
	registry.Register(handlers, "echo", func(_ context.Context, req echoRequest, _ *job.Job) (echoResponse, error) {
		return echoResponse{Out: req.V * 2}, nil
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ch := make(chan *job.Job, cfg.Worker.MaximumQueueSize)

	delay := engine.NewDelayCalculator(cfg.Worker.PollingInterval, cfg.Worker.MaxDelay, cfg.Worker.ErrorDelay)
	enqueuer := engine.NewEnqueuer(ch, cfg.Worker.ChannelWriteTimeout, logger)
	claiming := engine.NewClaimingService(mgr, enqueuer, cfg.Worker.WorkerID, logger)
	producer := engine.NewProducer(claiming, delay, ch, logger)
	processor := engine.NewProcessor(handlers, mgr, rec, logger)
	consumers := engine.NewConsumerPool(ch, processor, cfg.Worker.MaximumConcurrency, logger)

	var recoverer *recovery.Recovery
	if jobStore.SupportsRecovery() && cfg.Recovery.EnableDistributedJobRecovery {
		recoverer = recovery.New(jobStore, locker, clk, logger, recovery.Config{
			JobTimeout:       cfg.Recovery.JobTimeout,
			CheckInterval:    cfg.Recovery.CheckInterval,
			MaxRetries:       cfg.JobManager.DefaultMaxRetries,
			RetryBaseSeconds: cfg.JobManager.RetryDelayBaseSeconds,
		})
	}

	go producer.Run(ctx)
	go consumers.Run(ctx)
	if recoverer != nil {
		go recoverer.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /echo", httpapi.Submit(mgr, handlers, "echo", nil, nil))
	mux.HandleFunc("GET /jobs/{id}", httpapi.Status(mgr))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http.listen", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http.shutdown_failed", logging.ErrAttr(err))
	}

	done := make(chan struct{})
	go func() {
		consumers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("shutdown.grace_expired", "note", "in-flight jobs remain InProgress for recovery")
	}

	return nil
}

func buildStore(cfg *config.Config, clk clock.Clock) (store.Store, recovery.Locker, error) {
	if cfg.StoreBackend != "redis" {
		return memstore.New(clk), nil, nil
	}

	pool := &redis.Pool{
		MaxActive:   cfg.Redis.MaxActive,
		MaxIdle:     cfg.Redis.MaxIdle,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Redis.Addr)
		},
	}

	rs := redisstore.New(pool, cfg.Redis.Namespace, clk)
	return rs, rs, nil
}
