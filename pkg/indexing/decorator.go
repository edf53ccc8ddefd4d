package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xkanth/rangeindexer/pkg/chain"
)

// RangeDecorator wraps a Strategy so that every call checks and extends
// the persisted indexed_ranges coverage, the single source of truth for
// what a strategy has already indexed. Strategies never need to know
// about coverage tracking themselves.
type RangeDecorator struct {
	inner        Strategy
	strategyName string
	forceReindex bool
}

// NewRangeDecorator wraps inner with coverage tracking for strategyName.
func NewRangeDecorator(inner Strategy, strategyName string, forceReindex bool) *RangeDecorator {
	return &RangeDecorator{inner: inner, strategyName: strategyName, forceReindex: forceReindex}
}

// Process checks whether [from, to] is already fully covered; if so it
// returns an empty Stats without invoking the wrapped strategy. Otherwise
// it delegates to the wrapped strategy and, on success, extends the
// persisted coverage to include [from, to]. Coverage is never updated on
// failure.
func (d *RangeDecorator) Process(ctx context.Context, provider chain.Provider, db *pgxpool.Pool, from, to uint64) (Stats, error) {
	if !d.forceReindex {
		covered, err := d.isFullyCovered(ctx, db, from, to)
		if err != nil {
			return Stats{}, fmt.Errorf("check coverage for %s: %w", d.strategyName, err)
		}
		if covered {
			return Stats{}, nil
		}
	}

	start := time.Now()
	stats, err := d.inner.Process(ctx, provider, db, from, to)
	if err != nil {
		return stats, err
	}
	if stats.Took == 0 {
		stats.Took = time.Since(start)
	}

	if err := d.extendCoverage(ctx, db, from, to); err != nil {
		return stats, fmt.Errorf("record coverage for %s: %w", d.strategyName, err)
	}
	return stats, nil
}

func (d *RangeDecorator) isFullyCovered(ctx context.Context, db *pgxpool.Pool, from, to uint64) (bool, error) {
	var dbFrom, dbTo uint64
	err := db.QueryRow(ctx,
		`SELECT from_block, to_block FROM indexed_ranges WHERE strategy_name = $1`,
		d.strategyName,
	).Scan(&dbFrom, &dbTo)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rangeCovered(dbFrom, dbTo, from, to), nil
}

// rangeCovered reports whether [from, to] already lies within the
// persisted [dbFrom, dbTo] interval.
func rangeCovered(dbFrom, dbTo, from, to uint64) bool {
	return from >= dbFrom && to <= dbTo
}

func (d *RangeDecorator) extendCoverage(ctx context.Context, db *pgxpool.Pool, from, to uint64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO indexed_ranges (strategy_name, from_block, to_block, last_updated)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (strategy_name) DO UPDATE SET
			from_block = LEAST(indexed_ranges.from_block, EXCLUDED.from_block),
			to_block = GREATEST(indexed_ranges.to_block, EXCLUDED.to_block),
			last_updated = NOW()
	`, d.strategyName, from, to)
	return err
}

// Name passes through to the wrapped strategy's name.
func (d *RangeDecorator) Name() string {
	return d.inner.Name()
}

// Clone returns a new decorator wrapping an independent clone of the
// inner strategy.
func (d *RangeDecorator) Clone() Strategy {
	return &RangeDecorator{inner: d.inner.Clone(), strategyName: d.strategyName, forceReindex: d.forceReindex}
}
