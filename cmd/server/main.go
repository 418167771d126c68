package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"stationledger/backend/internal/cache"
	"stationledger/backend/internal/config"
	"stationledger/backend/internal/logging"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/scheduler"
	"stationledger/backend/internal/service"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/store/memory"
	pgstore "stationledger/backend/internal/store/postgres"
	"stationledger/backend/internal/topology"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	policy, err := service.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.WithError(err).Fatal("invalid policy file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
				logger.WithError(err).Fatal("auto migration failed")
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory (seeded demo station)")
	}

	topologyCache := cache.TopologyCache(cache.NoopTopologyCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisTopologyCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop topology cache")
			_ = redisCache.Close()
		} else {
			topologyCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	reader := topology.NewReader(repo, topologyCache, cfg.TopologyCacheTTL(), logger)
	svc := service.New(repo, reader, policy, service.WithLogger(logger), service.WithMetrics(recorder))

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	sweeper := scheduler.NewSweeper(svc, scheduler.Config{
		Stations: cfg.SweepStations,
		BankID:   cfg.DepositBankID,
		Operator: cfg.SweepOperator,
		Interval: cfg.SweepInterval(),
	}, logger, recorder)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Start(runCtx)
	}()

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.MetricsAddr).Info("station ledger operations listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("operations listener error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stop()
	<-sweepDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

// opsHandler serves the scrape endpoint and a liveness probe; the engine has
// no request API.
func opsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func migrateUp(databaseURL string, logger *logrus.Logger) error {
	migrator, err := pgstore.NewMigrator(databaseURL, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}
