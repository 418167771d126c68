package main

import (
	"flag"
	"fmt"
	"os"

	"stationledger/backend/internal/config"
	"stationledger/backend/internal/logging"
	pgstore "stationledger/backend/internal/store/postgres"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	version := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	migrator, err := pgstore.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("open migrator")
	}
	defer migrator.Close()

	switch {
	case *version:
		v, dirty, err := migrator.Version()
		if err != nil {
			logger.WithError(err).Fatal("read schema version")
		}
		fmt.Fprintf(os.Stdout, "version=%d dirty=%t\n", v, dirty)
	case *down > 0:
		if err := migrator.Down(*down); err != nil {
			logger.WithError(err).Fatal("roll back migrations")
		}
	default:
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("apply migrations")
		}
	}
}
