// Package supervisor implements the per-range indexer: given a block
// range, it chunks it, fans each chunk out across strategies in
// parallel, retries failed strategy runs, adapts the chunk size to
// provider feedback, and honors cooperative interruption at chunk
// boundaries.
package supervisor

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/0xkanth/rangeindexer/internal/chunk"
	"github.com/0xkanth/rangeindexer/internal/retry"
	"github.com/0xkanth/rangeindexer/internal/state"
	"github.com/0xkanth/rangeindexer/pkg/chain"
	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

var (
	chunkSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rangeindexer_chunk_size",
		Help: "Current adaptive chunk size in blocks",
	})

	strategyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rangeindexer_strategy_errors_total",
		Help: "Total strategy failures after retries, by strategy name",
	}, []string{"strategy"})

	chunksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rangeindexer_chunks_processed_total",
		Help: "Total chunks processed, by strategy name",
	}, []string{"strategy"})
)

// StrategyEntry pairs a decorated strategy with the from_block below
// which it has no work (used to skip chunks entirely before its start).
type StrategyEntry struct {
	Decorated indexing.Strategy
	FromBlock uint64
}

// Config bundles the dependencies a single supervisor run needs.
type Config struct {
	Provider     chain.Provider
	DB           *pgxpool.Pool
	Strategies   []StrategyEntry
	ChunkManager *chunk.Manager
	RetryConfig  retry.Config
	Logger       zerolog.Logger
	State        *state.State // optional; nil disables checkpoint bookkeeping
	OnStats      func(strategyName string, stats indexing.Stats, from, to uint64)
}

// Run processes [from, to] inclusive, chunk by chunk, fanning each chunk
// out across cfg.Strategies. It returns to once the whole range has been
// processed. When a cooperative interrupt (pause or a pending reindex
// request) is observed at a chunk boundary, it returns the first block not
// yet processed, the point a later call resumes from.
func Run(ctx context.Context, cfg Config, from, to uint64) uint64 {
	cur := from
	for cur <= to {
		if cfg.State != nil {
			if cfg.State.Paused() || cfg.State.HasPendingReindex() {
				cfg.State.UpdateCurrent(cur)
				return cur
			}
			cfg.State.UpdateCurrent(cur)
		}

		size := cfg.ChunkManager.Get()
		chunkSize.Set(float64(size))
		end := cur + size - 1
		if end > to {
			end = to
		}

		runChunk(ctx, cfg, cur, end)

		cur = end + 1
	}
	return to
}

// runChunk fans cfg.Strategies out in parallel over [from, to], retrying
// each through the retry executor and feeding success/failure back into
// the chunk manager. Errors are logged, not propagated: a strategy
// failure after retry exhaustion does not abort the range, and coverage
// simply is not extended for that strategy on that chunk.
func runChunk(ctx context.Context, cfg Config, from, to uint64) {
	var wg sync.WaitGroup
	for _, entry := range cfg.Strategies {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := from
			if entry.FromBlock > start {
				start = entry.FromBlock
			}
			if start > to {
				return
			}

			strat := entry.Decorated.Clone()
			name := strat.Name()
			stats, err := retry.Run(ctx, cfg.RetryConfig, cfg.Logger, name, func() (indexing.Stats, error) {
				return strat.Process(ctx, cfg.Provider, cfg.DB, start, to)
			})

			chunksProcessed.WithLabelValues(name).Inc()

			if err != nil {
				strategyErrors.WithLabelValues(name).Inc()
				cfg.ChunkManager.OnProviderError(err)
				cfg.Logger.Error().Err(err).Str("strategy", name).Uint64("from", start).Uint64("to", to).Msg("strategy chunk failed")
				return
			}

			cfg.ChunkManager.OnSuccess()
			if cfg.OnStats != nil {
				cfg.OnStats(name, stats, start, to)
			}
		}()
	}
	wg.Wait()
}

