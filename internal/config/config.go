// Package config loads the service's environment-variable configuration.
// Configuration file parsing is explicitly out of scope, so this only
// wires koanf's env provider — no file or TOML parser.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// StrategyEnv is the raw per-strategy environment overrides this service
// recognizes: STRAT_<NAME>_FROM, STRAT_<NAME>_REINDEX, STRAT_<NAME>_ADDR.
type StrategyEnv struct {
	From    uint64
	Reindex bool
	Addr    string
}

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL    string
	RPCURL         string
	APIPort        int
	APIKey         string
	MetricsPort    int
	NATSURL        string
	StateCachePath string
	ChainID        int64
	Confirmations  uint64
	InitialChunk   uint64
	MinChunk       uint64
	PollInterval   time.Duration
	LogLevel       string
}

// NewKoanf builds a koanf instance populated from the process
// environment, with no file-based provider layered in.
func NewKoanf() (*koanf.Koanf, error) {
	ko := koanf.New(".")
	if err := ko.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return ko, nil
}

// Load reads all recognized environment variables and applies defaults
// for anything optional. DATABASE_URL and RPC_URL are required.
func Load(ko *koanf.Koanf) (Config, error) {
	cfg := Config{
		DatabaseURL:    ko.String("DATABASE_URL"),
		RPCURL:         ko.String("RPC_URL"),
		APIPort:        intOr(ko, "API_PORT", 3000),
		APIKey:         stringOr(ko, "API_KEY", "changeme"),
		MetricsPort:    intOr(ko, "METRICS_PORT", 9090),
		NATSURL:        stringOr(ko, "NATS_URL", "nats://localhost:4222"),
		StateCachePath: stringOr(ko, "STATE_CACHE_PATH", "./data/state.db"),
		ChainID:        int64(intOr(ko, "CHAIN_ID", 1)),
		Confirmations:  uint64(intOr(ko, "CONFIRMATIONS", 32)),
		InitialChunk:   uint64(intOr(ko, "INITIAL_CHUNK_SIZE", 2000)),
		MinChunk:       uint64(intOr(ko, "MIN_CHUNK_SIZE", 100)),
		PollInterval:   time.Duration(intOr(ko, "POLL_INTERVAL_SECS", 5)) * time.Second,
		LogLevel:       stringOr(ko, "LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("RPC_URL is required")
	}

	return cfg, nil
}

// ReadStrategyEnv reads the STRAT_<NAME>_FROM, STRAT_<NAME>_REINDEX, and
// STRAT_<NAME>_ADDR overrides for one strategy, falling back to
// defaultFrom when STRAT_<NAME>_FROM is unset or unparseable.
func ReadStrategyEnv(ko *koanf.Koanf, name string, defaultFrom uint64) StrategyEnv {
	prefix := "STRAT_" + strings.ToUpper(name) + "_"
	return StrategyEnv{
		From:    uintOr(ko, prefix+"FROM", defaultFrom),
		Reindex: boolOr(ko, prefix+"REINDEX", false),
		Addr:    ko.String(prefix + "ADDR"),
	}
}

func stringOr(ko *koanf.Koanf, key, fallback string) string {
	if v := ko.String(key); v != "" {
		return v
	}
	return fallback
}

func intOr(ko *koanf.Koanf, key string, fallback int) int {
	v := ko.String(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func uintOr(ko *koanf.Koanf, key string, fallback uint64) uint64 {
	v := ko.String(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func boolOr(ko *koanf.Koanf, key string, fallback bool) bool {
	v := ko.String(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
