package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment             string
	LogLevel                string
	LogFormat               string
	DatabaseURL             string
	AutoMigrate             bool
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	TopologyCacheTTLSeconds int
	MetricsAddr             string
	PolicyFile              string
	SweepIntervalSeconds    int
	SweepStations           []string
	DepositBankID           string
	SweepOperator           string
}

// Load reads .env when present, then the process environment.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TOPOLOGY_CACHE_TTL_SECONDS", 60)
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 300)
	v.SetDefault("SWEEP_OPERATOR", "system-sweeper")

	ttl := v.GetInt("TOPOLOGY_CACHE_TTL_SECONDS")
	if ttl < 1 {
		ttl = 60
	}
	interval := v.GetInt("SWEEP_INTERVAL_SECONDS")
	if interval < 1 {
		interval = 300
	}

	return Config{
		Environment:             v.GetString("ENVIRONMENT"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		LogFormat:               v.GetString("LOG_FORMAT"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		AutoMigrate:             v.GetBool("AUTO_MIGRATE"),
		RedisAddr:               v.GetString("REDIS_ADDR"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		RedisDB:                 v.GetInt("REDIS_DB"),
		TopologyCacheTTLSeconds: ttl,
		MetricsAddr:             v.GetString("METRICS_ADDR"),
		PolicyFile:              v.GetString("POLICY_FILE"),
		SweepIntervalSeconds:    interval,
		SweepStations:           splitCSV(v.GetString("SWEEP_STATIONS")),
		DepositBankID:           strings.TrimSpace(v.GetString("DEPOSIT_BANK_ID")),
		SweepOperator:           v.GetString("SWEEP_OPERATOR"),
	}
}

func (c Config) TopologyCacheTTL() time.Duration {
	return time.Duration(c.TopologyCacheTTLSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects combinations the server cannot run with.
func (c Config) Validate() error {
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set in production")
	}
	if len(c.SweepStations) > 0 && c.SweepOperator == "" {
		return fmt.Errorf("SWEEP_OPERATOR must be set when SWEEP_STATIONS is configured")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
