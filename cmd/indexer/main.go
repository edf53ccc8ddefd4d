// Main indexer service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/knadh/koanf/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xkanth/rangeindexer/internal/api"
	"github.com/0xkanth/rangeindexer/internal/config"
	"github.com/0xkanth/rangeindexer/internal/eventbus"
	"github.com/0xkanth/rangeindexer/internal/follower"
	"github.com/0xkanth/rangeindexer/internal/retry"
	"github.com/0xkanth/rangeindexer/internal/state"
	"github.com/0xkanth/rangeindexer/internal/statecache"
	"github.com/0xkanth/rangeindexer/internal/strategy/rawlog"
	"github.com/0xkanth/rangeindexer/internal/util"
	"github.com/0xkanth/rangeindexer/pkg/chain"
	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

const serviceName = "rangeindexer"

func main() {
	logger := util.InitLogger()
	logger.Info().Msg("starting range indexer")

	ko, err := config.NewKoanf()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read environment")
	}
	cfg, err := config.Load(ko)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	util.SetLogLevel(cfg.LogLevel, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to dial chain provider")
	}
	defer provider.Close()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid DATABASE_URL")
	}
	poolCfg.MaxConns = 5
	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create database pool")
	}
	defer db.Close()
	logger.Info().Int32("max_conns", poolCfg.MaxConns).Msg("database pool ready")

	cache, err := statecache.Open(cfg.StateCachePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open state cache")
	}
	defer cache.Close()
	saver := statecache.NewServiceSaver(cache, serviceName, func(err error) {
		logger.Warn().Err(err).Msg("failed to save state snapshot")
	})

	publisher, err := eventbus.NewPublisher(cfg.NATSURL, 7*24*time.Hour, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create stats event bus publisher")
	}
	defer publisher.Close()

	strategies := buildStrategies(ko)
	logger.Info().Int("count", len(strategies)).Msg("strategies configured")

	svcState := state.New(minStrategyFrom(strategies))

	if snap, found, loadErr := cache.Load(serviceName); loadErr != nil {
		logger.Warn().Err(loadErr).Msg("failed to load cached state snapshot")
	} else if found {
		svcState.SetHeadAndLastBlock(snap.Head, snap.LastBlock)
		logger.Info().Uint64("last_block", snap.LastBlock).Uint64("head", snap.Head).Msg("resumed from cached snapshot")
	}

	f := follower.New(follower.Config{
		Provider:         provider,
		DB:               db,
		State:            svcState,
		Strategies:       strategies,
		Confirmations:    cfg.Confirmations,
		PollInterval:     cfg.PollInterval,
		RetryConfig:      retry.DefaultConfig(),
		InitialChunkSize: cfg.InitialChunk,
		MinChunkSize:     cfg.MinChunk,
		Logger:           logger,
		Stats:            publisher,
		Snapshot:         saver,
	})

	apiAddr := fmt.Sprintf("0.0.0.0:%d", cfg.APIPort)
	apiServer := api.NewServer(svcState, cfg.APIKey, apiAddr, logger)

	metricsAddr := fmt.Sprintf("0.0.0.0:%d", cfg.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", healthCheckHandler(db, provider, publisher))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		logger.Info().Str("address", apiAddr).Msg("starting control api server")
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("control api server error")
		}
	}()

	go func() {
		logger.Info().Str("address", metricsAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- f.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("follower exited with error")
		}
	}

	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control api server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}

// buildStrategies wires the reference rawlog strategy, honoring the
// STRAT_RAW_LOGS_FROM/REINDEX/ADDR environment overrides. Operators
// embedding this service add their own Strategy implementations here
// alongside rawlog.
func buildStrategies(ko *koanf.Koanf) []indexing.Config {
	env := config.ReadStrategyEnv(ko, "raw_logs", 0)

	var addrs []common.Address
	if env.Addr != "" {
		addrs = []common.Address{common.HexToAddress(env.Addr)}
	}

	return []indexing.Config{
		{
			Strategy:     rawlog.New("raw_logs", addrs),
			FromBlock:    env.From,
			ForceReindex: env.Reindex,
		},
	}
}

func minStrategyFrom(strategies []indexing.Config) uint64 {
	if len(strategies) == 0 {
		return 0
	}
	min := strategies[0].FromBlock
	for _, sc := range strategies[1:] {
		if sc.FromBlock < min {
			min = sc.FromBlock
		}
	}
	return min
}

// healthCheckHandler reports process-level liveness: can the database pool
// be reached, is the chain provider reachable, and is the stats event bus
// connected. This is distinct from the control API's public /health,
// which only confirms the HTTP server itself is up.
func healthCheckHandler(db *pgxpool.Pool, provider chain.Provider, publisher *eventbus.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy\ndatabase: %v\n", err)
			return
		}

		if _, err := provider.BlockNumber(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy\nchain provider: %v\n", err)
			return
		}

		if !publisher.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy\nstats event bus: not connected\n")
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\n")
	}
}
