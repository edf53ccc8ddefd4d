// Package rawlog is a minimal reference Strategy: it writes one row per
// matched log into raw_logs without decoding against any ABI, so a
// collaborator can see the idempotence contract demonstrated end to end
// before writing a strategy of their own.
package rawlog

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xkanth/rangeindexer/pkg/chain"
	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

// Strategy stores every log emitted by Addresses (or every log in range,
// when Addresses is empty) into the raw_logs table.
type Strategy struct {
	name      string
	addresses []common.Address
}

var _ indexing.Strategy = (*Strategy)(nil)

// New builds a rawlog Strategy named name, optionally scoped to addresses.
// An empty addresses slice matches every contract.
func New(name string, addresses []common.Address) *Strategy {
	return &Strategy{name: name, addresses: addresses}
}

// Name returns the strategy's stable identifier.
func (s *Strategy) Name() string {
	return s.name
}

// Clone returns an independent copy; Strategy carries no mutable state
// beyond its construction-time fields, and the address slice is copied so
// the clone shares no backing array with the original.
func (s *Strategy) Clone() indexing.Strategy {
	addrs := make([]common.Address, len(s.addresses))
	copy(addrs, s.addresses)
	return &Strategy{name: s.name, addresses: addrs}
}

// Process fetches logs in [from, to] and inserts one row per log into
// raw_logs, ignoring duplicates on (tx_hash, log_index).
func (s *Strategy) Process(ctx context.Context, provider chain.Provider, db *pgxpool.Pool, from, to uint64) (indexing.Stats, error) {
	start := time.Now()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.addresses,
	}

	logs, err := provider.FilterLogs(ctx, query)
	if err != nil {
		return indexing.Stats{}, fmt.Errorf("filter logs: %w", err)
	}

	var written uint64
	for _, lg := range logs {
		topics := make([]string, len(lg.Topics))
		for i, t := range lg.Topics {
			topics[i] = t.Hex()
		}

		tag, err := db.Exec(ctx, `
			INSERT INTO raw_logs (
				strategy_name, block_number, block_hash, tx_hash, log_index,
				contract_address, topics, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			s.name,
			lg.BlockNumber,
			lg.BlockHash.Hex(),
			lg.TxHash.Hex(),
			lg.Index,
			lg.Address.Hex(),
			topics,
			lg.Data,
		)
		if err != nil {
			return indexing.Stats{}, fmt.Errorf("insert raw log: %w", err)
		}
		written += uint64(tag.RowsAffected())
	}

	return indexing.Stats{
		LogsFound:   len(logs),
		RowsWritten: written,
		FromBlock:   from,
		ToBlock:     to,
		Took:        time.Since(start),
	}, nil
}
