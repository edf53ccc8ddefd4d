// Package chain wraps the narrow set of upstream chain RPC operations the
// supervisor and strategy implementations need: the current block height
// and filtered log queries. Anything else (receipts, full blocks,
// subscriptions, transaction sending) belongs to individual strategies,
// not the core.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Provider is the upstream chain surface the supervisor and strategies
// depend on. It is satisfied by *Client in production and by fakes in
// tests.
type Provider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Client is a Provider backed by go-ethereum's ethclient over plain
// JSON-RPC HTTP.
type Client struct {
	rpc     *ethclient.Client
	chainID *big.Int
	logger  zerolog.Logger
}

// Dial connects to rpcURL and verifies the remote chain ID matches
// expectedChainID before returning. A mismatch almost always means a
// misconfigured RPC_URL pointing at the wrong network.
func Dial(ctx context.Context, rpcURL string, expectedChainID int64, logger zerolog.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	actual, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	want := big.NewInt(expectedChainID)
	if actual.Cmp(want) != 0 {
		rpc.Close()
		return nil, fmt.Errorf("chain id mismatch: expected %d, got %s", expectedChainID, actual)
	}

	logger.Info().Int64("chain_id", expectedChainID).Str("rpc_url", rpcURL).Msg("chain provider connected")

	return &Client{rpc: rpc, chainID: want, logger: logger}, nil
}

// BlockNumber returns the latest block number known to the RPC endpoint.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// FilterLogs queries logs matching query, typically bounded by a
// FromBlock/ToBlock range.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	return logs, nil
}

// ChainID returns the chain ID this client was dialed against.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}
