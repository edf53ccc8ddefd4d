// Package follower drives the supervisor forward forever: it arbitrates
// between honoring a pause, consuming a pending reindex request,
// resuming an interrupted range, and following the chain head.
package follower

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/0xkanth/rangeindexer/internal/chunk"
	"github.com/0xkanth/rangeindexer/internal/retry"
	"github.com/0xkanth/rangeindexer/internal/state"
	"github.com/0xkanth/rangeindexer/internal/supervisor"
	"github.com/0xkanth/rangeindexer/pkg/chain"
	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

const pausedPollInterval = 100 * time.Millisecond

// StatsSink receives observational Stats after a successful decorated
// strategy run. Implementations must not block the caller for long.
type StatsSink interface {
	Publish(strategyName string, stats indexing.Stats, from, to uint64)
}

// SnapshotSaver is given a chance to persist a cheap, non-authoritative
// snapshot of supervisory state each time the follow-head step observes
// the chain head, before any new range is processed.
type SnapshotSaver interface {
	Save(head, lastBlock uint64, status state.Status)
}

// Follower owns the strategy configuration and the shared supervisory
// state, and runs the indefinite arbitration loop described by the
// control plane.
type Follower struct {
	provider      chain.Provider
	db            *pgxpool.Pool
	state         *state.State
	strategies    []indexing.Config
	confirmations uint64
	pollInterval  time.Duration
	retryConfig   retry.Config
	chunkManager  *chunk.Manager
	logger        zerolog.Logger
	stats         StatsSink
	snapshot      SnapshotSaver
}

// Config configures a Follower.
type Config struct {
	Provider            chain.Provider
	DB                  *pgxpool.Pool
	State               *state.State
	Strategies          []indexing.Config
	Confirmations       uint64
	PollInterval        time.Duration
	RetryConfig         retry.Config
	InitialChunkSize    uint64
	MinChunkSize        uint64
	Logger              zerolog.Logger
	Stats               StatsSink
	Snapshot            SnapshotSaver
}

// New builds a Follower with a single adaptive chunk manager shared by
// every strategy in one run, since the chunk window is a property of the
// [from, to] range being fanned out, not of any one strategy.
func New(cfg Config) *Follower {
	maxChunk := cfg.InitialChunkSize * 2
	manager := chunk.NewManager(cfg.InitialChunkSize, cfg.MinChunkSize, maxChunk)

	return &Follower{
		provider:      cfg.Provider,
		db:            cfg.DB,
		state:         cfg.State,
		strategies:    cfg.Strategies,
		confirmations: cfg.Confirmations,
		pollInterval:  cfg.PollInterval,
		retryConfig:   cfg.RetryConfig,
		chunkManager:  manager,
		logger:        cfg.Logger,
		stats:         cfg.Stats,
		snapshot:      cfg.Snapshot,
	}
}

// Run executes the arbitration loop until ctx is canceled.
func (f *Follower) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 1. Paused gate: a pending reindex wakes the follower even
		// while paused.
		for f.state.Paused() && !f.state.HasPendingReindex() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pausedPollInterval):
			}
		}

		// 2. Reindex consumption.
		if req := f.state.TakePendingReindex(); req != nil {
			f.runReindex(ctx, *req)
			continue
		}

		// 3. Resume mid-range.
		if snap := f.state.Snapshot(); snap.Index != nil && !snap.Index.IsReindex && snap.Index.Current < snap.Index.To {
			f.resume(ctx, *snap.Index)
			continue
		}

		// 4. Follow head.
		if err := f.followHead(ctx); err != nil {
			f.logger.Error().Err(err).Msg("follow head failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.pollInterval):
		}
	}
}

func (f *Follower) runReindex(ctx context.Context, req state.IndexProgress) {
	participants := f.strategies
	if req.Strategy != "" {
		participants = nil
		for _, sc := range f.strategies {
			if sc.Strategy.Name() == req.Strategy {
				participants = append(participants, sc)
				break
			}
		}
		if len(participants) == 0 {
			f.logger.Warn().Str("strategy", req.Strategy).Msg("reindex requested for unknown strategy, skipping")
			return
		}
	}

	from := req.From
	if from == 0 {
		from = minFromBlock(participants)
	}
	to := req.To
	if to == 0 {
		to = maxUint64(f.state.LastBlock(), f.safeHead(ctx))
	}
	if from > to {
		f.logger.Warn().Uint64("from", from).Uint64("to", to).Msg("reindex range invalid, skipping")
		return
	}

	f.state.SetIndex(&state.IndexProgress{From: from, To: to, Current: from, Strategy: req.Strategy, IsReindex: true})

	for _, sc := range participants {
		if f.state.Paused() || f.state.HasPendingReindex() {
			break
		}
		reindexed := sc
		reindexed.ForceReindex = true
		f.runOne(ctx, reindexed, from, to)
	}

	if !f.state.Paused() && !f.state.HasPendingReindex() {
		f.state.ClearIndex()
	}
}

func (f *Follower) resume(ctx context.Context, progress state.IndexProgress) {
	last := f.runAll(ctx, progress.Current, progress.To)
	if last >= progress.To {
		f.state.ClearIndex()
		return
	}
	f.state.UpdateCurrent(last)
}

func (f *Follower) followHead(ctx context.Context) error {
	head, err := f.provider.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get chain head: %w", err)
	}
	safe := safeHead(head, f.confirmations)

	lastBlock := f.state.LastBlock()
	f.state.SetHeadAndLastBlock(head, lastBlock)
	if f.snapshot != nil {
		f.snapshot.Save(head, lastBlock, f.state.Snapshot().Status)
	}

	if lastBlock >= safe {
		f.logger.Debug().Uint64("last_block", lastBlock).Uint64("safe_head", safe).Msg("no new blocks")
		return nil
	}

	from := lastBlock + 1
	f.state.SetIndex(&state.IndexProgress{From: from, To: safe, Current: from})

	last := f.runAll(ctx, from, safe)
	if last >= safe && !f.state.Paused() && !f.state.HasPendingReindex() {
		f.state.SetHeadAndLastBlock(head, last)
		f.state.ClearIndex()
	}
	return nil
}

func (f *Follower) runAll(ctx context.Context, from, to uint64) uint64 {
	entries := make([]supervisor.StrategyEntry, 0, len(f.strategies))
	for _, sc := range f.strategies {
		entries = append(entries, f.decorate(sc))
	}
	return supervisor.Run(ctx, f.supervisorConfig(entries), from, to)
}

func (f *Follower) runOne(ctx context.Context, sc indexing.Config, from, to uint64) uint64 {
	entries := []supervisor.StrategyEntry{f.decorate(sc)}
	return supervisor.Run(ctx, f.supervisorConfig(entries), from, to)
}

func (f *Follower) decorate(sc indexing.Config) supervisor.StrategyEntry {
	name := sc.Strategy.Name()
	decorated := indexing.NewRangeDecorator(sc.Strategy, name, sc.ForceReindex)
	return supervisor.StrategyEntry{Decorated: decorated, FromBlock: sc.FromBlock}
}

func (f *Follower) supervisorConfig(entries []supervisor.StrategyEntry) supervisor.Config {
	return supervisor.Config{
		Provider:     f.provider,
		DB:           f.db,
		Strategies:   entries,
		ChunkManager: f.chunkManager,
		RetryConfig:  f.retryConfig,
		Logger:       f.logger,
		State:        f.state,
		OnStats: func(name string, stats indexing.Stats, from, to uint64) {
			if f.stats != nil {
				f.stats.Publish(name, stats, from, to)
			}
		},
	}
}

func (f *Follower) safeHead(ctx context.Context) uint64 {
	head, err := f.provider.BlockNumber(ctx)
	if err != nil {
		f.logger.Error().Err(err).Msg("get chain head for reindex bounds")
		return f.state.LastBlock()
	}
	return safeHead(head, f.confirmations)
}

func safeHead(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}

func minFromBlock(strategies []indexing.Config) uint64 {
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

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
