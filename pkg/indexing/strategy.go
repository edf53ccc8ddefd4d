// Package indexing defines the Strategy service-provider interface that
// external collaborators implement to extract and persist data from a
// block range, plus the range decorator that skips ranges a Strategy has
// already covered and records new coverage in Postgres.
package indexing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xkanth/rangeindexer/pkg/chain"
)

// Stats summarizes one decorated strategy run over a block range.
type Stats struct {
	LogsFound   int
	RowsWritten uint64
	FromBlock   uint64
	ToBlock     uint64
	Took        time.Duration
}

// Strategy is implemented by anything that extracts events from a block
// range and persists them. Implementations own their own target tables;
// the only contract the core relies on is idempotence — writing the same
// range twice must not duplicate rows.
type Strategy interface {
	// Name identifies this strategy in indexed_ranges and log output.
	// Stable across restarts.
	Name() string

	// Clone returns an independent copy so concurrent chunk goroutines
	// never share mutable state.
	Clone() Strategy

	// Process indexes [from, to] (inclusive) and reports what it did.
	// Implementations must be idempotent: re-processing an already
	// covered range is a correctness requirement, not just an
	// optimization, since the decorator may call Process again after a
	// crash mid-range.
	Process(ctx context.Context, provider chain.Provider, db *pgxpool.Pool, from, to uint64) (Stats, error)
}

// Config pairs a Strategy with its own starting point and reindex flag,
// so each strategy can track coverage independently of the others
// running alongside it.
type Config struct {
	Strategy     Strategy
	FromBlock    uint64
	ForceReindex bool
}
