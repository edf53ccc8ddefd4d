package supervisor

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/rangeindexer/internal/chunk"
	"github.com/0xkanth/rangeindexer/internal/retry"
	"github.com/0xkanth/rangeindexer/internal/state"
	"github.com/0xkanth/rangeindexer/pkg/chain"
	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

type recordingStrategy struct {
	name string
	mu   sync.Mutex
	runs []struct{ from, to uint64 }
	err  error
}

func (r *recordingStrategy) Name() string { return r.name }
func (r *recordingStrategy) Clone() indexing.Strategy {
	return r
}
func (r *recordingStrategy) Process(ctx context.Context, provider chain.Provider, db *pgxpool.Pool, from, to uint64) (indexing.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, struct{ from, to uint64 }{from, to})
	if r.err != nil {
		return indexing.Stats{}, r.err
	}
	return indexing.Stats{FromBlock: from, ToBlock: to, LogsFound: int(to - from + 1)}, nil
}

func testRetryConfig() retry.Config {
	return retry.Config{MaxRetries: 1, InitialDelay: 0, MaxDelay: 0, BackoffMultiplier: 1}
}

func TestRun_ProcessesEntireRangeInChunks(t *testing.T) {
	strat := &recordingStrategy{name: "raw_logs"}
	mgr := chunk.NewManager(10, 1, 20)

	var statsCalls []indexing.Stats
	cfg := Config{
		DB:           nil,
		Strategies:   []StrategyEntry{{Decorated: strat, FromBlock: 0}},
		ChunkManager: mgr,
		RetryConfig:  testRetryConfig(),
		Logger:       zerolog.Nop(),
		OnStats: func(name string, stats indexing.Stats, from, to uint64) {
			statsCalls = append(statsCalls, stats)
		},
	}

	last := Run(context.Background(), cfg, 1, 25)
	assert.Equal(t, uint64(25), last)
	require.Len(t, strat.runs, 3) // [1,10] [11,20] [21,25]
	assert.Equal(t, uint64(1), strat.runs[0].from)
	assert.Equal(t, uint64(10), strat.runs[0].to)
	assert.Equal(t, uint64(21), strat.runs[2].from)
	assert.Equal(t, uint64(25), strat.runs[2].to)
	assert.Len(t, statsCalls, 3)
}

func TestRun_StopsAtPauseCheckpoint(t *testing.T) {
	strat := &recordingStrategy{name: "raw_logs"}
	mgr := chunk.NewManager(10, 1, 20)
	st := state.New(0)
	st.Pause()

	cfg := Config{
		Strategies:   []StrategyEntry{{Decorated: strat}},
		ChunkManager: mgr,
		RetryConfig:  testRetryConfig(),
		Logger:       zerolog.Nop(),
		State:        st,
	}

	last := Run(context.Background(), cfg, 1, 100)
	assert.Equal(t, uint64(1), last)
	assert.Empty(t, strat.runs)
}

func TestRun_SkipsStrategyBelowItsFromBlock(t *testing.T) {
	early := &recordingStrategy{name: "early"}
	late := &recordingStrategy{name: "late"}
	mgr := chunk.NewManager(50, 1, 100)

	cfg := Config{
		Strategies: []StrategyEntry{
			{Decorated: early, FromBlock: 0},
			{Decorated: late, FromBlock: 1000},
		},
		ChunkManager: mgr,
		RetryConfig:  testRetryConfig(),
		Logger:       zerolog.Nop(),
	}

	last := Run(context.Background(), cfg, 1, 50)
	assert.Equal(t, uint64(50), last)
	assert.Len(t, early.runs, 1)
	assert.Empty(t, late.runs)
}

func TestRun_StrategyFailureDoesNotAbortRange(t *testing.T) {
	failing := &recordingStrategy{name: "failing", err: assertError("boom")}
	ok := &recordingStrategy{name: "ok"}
	mgr := chunk.NewManager(10, 1, 20)

	cfg := Config{
		Strategies:   []StrategyEntry{{Decorated: failing}, {Decorated: ok}},
		ChunkManager: mgr,
		RetryConfig:  testRetryConfig(),
		Logger:       zerolog.Nop(),
	}

	last := Run(context.Background(), cfg, 1, 10)
	assert.Equal(t, uint64(10), last)
	assert.Len(t, failing.runs, 1)
	assert.Len(t, ok.runs, 1)
}

type assertError string

func (e assertError) Error() string { return string(e) }
