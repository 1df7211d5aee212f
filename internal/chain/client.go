package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTimestampCacheSize bounds the block timestamp cache.
	DefaultTimestampCacheSize = 4096
	// maxBatchCalls caps the requests sent in one JSON-RPC batch.
	maxBatchCalls = 100
)

// Option tunes a Client.
type Option func(*Client)

// WithTimestampCacheSize sets how many block timestamps are kept.
func WithTimestampCacheSize(n int) Option {
	return func(c *Client) { c.cacheSize = n }
}

// Client wraps go-ethereum RPC with the calls the pool tools need.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	cacheSize int
	times     *lru.Cache[uint64, uint64]

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := NewClientFromRPC(rpcClient, opts...)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return c, nil
}

// NewClientFromRPC wraps an existing connection. The Client owns it from
// here on and closes it in Close.
func NewClientFromRPC(rpcClient *rpc.Client, opts ...Option) (*Client, error) {
	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		cacheSize: DefaultTimestampCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	times, err := lru.New[uint64, uint64](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("timestamp cache: %w", err)
	}
	c.times = times
	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID. The first answer is reused.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// LatestBlockNumber returns the head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}

// blockTime is the part of an eth_getBlockByNumber answer we read.
type blockTime struct {
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// BlockTimestamps returns the timestamp of every listed block. Cache misses
// are fetched with batched eth_getBlockByNumber calls.
func (c *Client) BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	var missing []uint64
	for _, n := range numbers {
		if _, done := out[n]; done {
			continue
		}
		if ts, ok := c.times.Get(n); ok {
			out[n] = ts
			continue
		}
		out[n] = 0
		missing = append(missing, n)
	}

	for len(missing) > 0 {
		chunk := missing[:min(len(missing), maxBatchCalls)]
		missing = missing[len(chunk):]

		results := make([]*blockTime, len(chunk))
		batch := make([]rpc.BatchElem, len(chunk))
		for i, n := range chunk {
			batch[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{hexutil.EncodeUint64(n), false},
				Result: &results[i],
			}
		}
		if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
			return nil, fmt.Errorf("eth_getBlockByNumber batch: %w", err)
		}
		for i, n := range chunk {
			if batch[i].Error != nil {
				return nil, fmt.Errorf("block %d: %w", n, batch[i].Error)
			}
			if results[i] == nil {
				return nil, fmt.Errorf("block %d: %w", n, ethereum.NotFound)
			}
			ts := uint64(results[i].Timestamp)
			c.times.Add(n, ts)
			out[n] = ts
		}
	}
	return out, nil
}

// FilterLogs returns logs in [fromBlock, toBlock] whose topic0 is one of
// topic0. Empty addresses or topic0 match everything.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs %d-%d: %w", fromBlock, toBlock, err)
	}
	return logs, nil
}

// CallContract performs an eth_call. A nil blockNumber reads latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
