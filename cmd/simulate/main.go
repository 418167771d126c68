package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand/v2"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stationledger/backend/internal/config"
	"stationledger/backend/internal/logging"
	"stationledger/backend/internal/metrics"
	"stationledger/backend/internal/service"
	"stationledger/backend/internal/simulation"
	"stationledger/backend/internal/store"
	"stationledger/backend/internal/store/memory"
	pgstore "stationledger/backend/internal/store/postgres"
)

func main() {
	days := flag.Int("days", 7, "number of trading days to simulate")
	seed := flag.Uint64("seed", 1, "random seed")
	startDate := flag.String("start", "2025-01-15", "first trading day (YYYY-MM-DD, UTC)")
	shifts := flag.Int("shifts", 2, "shifts per day")
	expense := flag.Float64("expense-probability", 0.3, "chance of an expense after each shift")
	usePostgres := flag.Bool("postgres", false, "run against DATABASE_URL instead of the in-memory store")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		logger.WithError(err).Fatal("invalid -start")
	}
	start = start.Add(6 * time.Hour)

	policy, err := service.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.WithError(err).Fatal("invalid policy file")
	}

	ctx := context.Background()
	var repo store.Repository
	if *usePostgres {
		if cfg.DatabaseURL == "" {
			logger.Fatal("-postgres needs DATABASE_URL")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("postgres unavailable")
		}
		defer pg.Close()
		if err := pg.WithTx(ctx, func(q store.Queries) error {
			return store.SeedDemo(ctx, q, start)
		}); err != nil {
			logger.WithError(err).Fatal("seed demo station (run against an empty database)")
		}
		repo = pg
	} else {
		repo = memory.NewSeeded()
	}

	svc := service.New(repo, nil, policy,
		service.WithLogger(logger),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())))

	simCfg := simulation.DemoConfig(start, *days)
	simCfg.ShiftsPerDay = *shifts
	simCfg.ExpenseProbability = *expense
	driver := simulation.New(svc, simCfg, rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), logger)

	summary, err := driver.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("simulation failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.WithError(err).Fatal("write summary")
	}
	logger.Info("safe ledger verified")
}
