package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/rueidis"

	"github.com/Kushchii/sse-service/internal/broadcast"
	cfgpkg "github.com/Kushchii/sse-service/internal/config"
	"github.com/Kushchii/sse-service/internal/ingest"
	"github.com/Kushchii/sse-service/internal/relay"
	httpserver "github.com/Kushchii/sse-service/internal/server/http"
	"github.com/Kushchii/sse-service/internal/store"
	pebblestore "github.com/Kushchii/sse-service/internal/storage/pebble"
	"github.com/Kushchii/sse-service/internal/telemetry"
	logpkg "github.com/Kushchii/sse-service/pkg/log"
)

// Run builds the full service from cfg and blocks until ctx is cancelled or
// a fatal startup error occurs. It layers a signal context over the provided
// one so SIGINT and SIGTERM trigger a graceful shutdown.
func Run(ctx context.Context, cfg *cfgpkg.Config) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logpkg.RedirectStdLog(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs := telemetry.NewPrometheus(reg)

	st, closeStore, err := openStore(sctx, cfg, logger, obs)
	if err != nil {
		return err
	}
	defer closeStore()

	strategy, err := broadcast.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	bus, err := broadcast.New(broadcast.Config{
		Strategy:     strategy,
		BufferSize:   cfg.BufferSize,
		PollInterval: cfg.PollInterval,
	}, st, logger, obs)
	if err != nil {
		return err
	}
	defer bus.Close()

	pipe := ingest.New(st, bus, retryPolicy(cfg), logger, obs)

	logger.Info("starting sse-service",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("strategy", cfg.Strategy),
		logpkg.Str("store", cfg.StoreBackend),
		logpkg.Str("level", cfg.LogLevel),
		logpkg.Str("format", cfg.LogFormat),
	)

	var wg sync.WaitGroup

	if cfg.RedisAddr != "" {
		client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{cfg.RedisAddr}})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		rl := relay.New(client, cfg.RedisStream, bus, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Run(sctx); err != nil && sctx.Err() == nil {
				logger.Error("relay stopped", logpkg.Err(err))
			}
		}()
	}

	hsrv := httpserver.New(httpserver.Options{
		Pipeline: pipe,
		Bus:      bus,
		Store:    st,
		Logger:   logger,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr <- hsrv.ListenAndServe(sctx, cfg.HTTPAddr)
	}()

	var runErr error
	select {
	case <-sctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = err
	}
	stop()
	hsrv.Close()
	wg.Wait()
	return runErr
}

func openStore(ctx context.Context, cfg *cfgpkg.Config, logger logpkg.Logger, obs *telemetry.Prometheus) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = cfgpkg.DefaultDataDir()
		}
		fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, nil, err
		}
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(dataDir, "store"),
			Fsync:         fsync,
			FsyncInterval: cfg.FsyncInterval,
			Metrics:       obs,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble: %w", err)
		}
		st, err := store.OpenPebble(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close(); _ = db.Close() }, nil
	}
}

func retryPolicy(cfg *cfgpkg.Config) ingest.RetryPolicy {
	if cfg.RetryShape == "fixed" {
		p := ingest.FixedPolicy()
		if cfg.FixedRetryAttempts > 0 {
			p.MaxAttempts = cfg.FixedRetryAttempts
		}
		if cfg.FixedRetryDelay > 0 {
			p.BaseDelay = cfg.FixedRetryDelay
		}
		return p
	}
	p := ingest.ExponentialPolicy()
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		p.BaseDelay = cfg.RetryBaseDelay
	}
	return p
}
