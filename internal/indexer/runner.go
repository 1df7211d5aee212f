package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityPool/internal/dex"
	"liquidityPool/internal/model"
	"liquidityPool/internal/storage"
)

// LogSource is the chain surface the runner reads from. *chain.Client
// satisfies it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	FollowCreated     bool
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner streams pool logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	chain      LogSource
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	watched    map[common.Address]struct{}
	followed   []common.Address
	created    common.Hash
	checkpoint *CheckpointStore
	now        func() time.Time
}

// NewRunner builds a Runner with its dependencies. An empty Topic0 filter
// selects every factory and pool event.
func NewRunner(cfg RunConfig, source LogSource, storageSink storage.Storage, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	topics, err := dex.EventTopics()
	if err != nil {
		return nil, fmt.Errorf("pool event topics: %w", err)
	}
	if len(cfg.Topic0) == 0 {
		for _, topic := range topics {
			cfg.Topic0 = append(cfg.Topic0, common.HexToHash(topic))
		}
	}

	watched := make(map[common.Address]struct{}, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		watched[addr] = struct{}{}
	}

	return &Runner{
		cfg:        cfg,
		chain:      source,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		watched:    watched,
		created:    common.HexToHash(topics["PoolCreated"]),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		now:        time.Now,
	}, nil
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	span := BlockRange{From: r.cfg.FromBlock, To: r.cfg.ToBlock}
	if span.To == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		span.To = latest
	}
	if span.From > span.To {
		r.logger.Info("nothing to sync", zap.Uint64("from", span.From), zap.Uint64("to", span.To))
		return nil
	}

	span, ok, err := r.resume(chainIDValue, span)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Info("checkpoint already covers range", zap.Uint64("to", r.cfg.ToBlock))
		return nil
	}

	ranges, err := SplitRange(span.From, span.To, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		fresh := make([]types.Log, 0, len(logs))
		blocks := make([]uint64, 0, len(logs))
		var discovered int
		for _, log := range logs {
			key := logKey(log)
			if _, dup := r.seen[key]; dup {
				continue
			}
			r.seen[key] = struct{}{}
			if r.follow(log) {
				discovered++
			}
			fresh = append(fresh, log)
			if len(blocks) == 0 || blocks[len(blocks)-1] != log.BlockNumber {
				blocks = append(blocks, log.BlockNumber)
			}
		}

		times, err := r.blockTimestampsWithRetry(ctx, blocks)
		if err != nil {
			return fmt.Errorf("block timestamps %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		ingestedAt := r.now().UTC()
		records := make([]model.LogRecord, 0, len(fresh))
		for _, log := range fresh {
			records = append(records, toLogRecord(chainIDValue, log, times[log.BlockNumber], ingestedAt))
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if err := r.checkpoint.Save(Checkpoint{
			ChainID:            chainIDValue,
			LastProcessedBlock: blockRange.To,
			Pools:              r.followedHex(),
		}); err != nil {
			return err
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(records)),
			zap.Int("pools_discovered", discovered),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

// Addresses returns the current emitter filter, including followed pools.
func (r *Runner) Addresses() []common.Address {
	out := make([]common.Address, len(r.cfg.Addresses))
	copy(out, r.cfg.Addresses)
	return out
}

// follow adds the pool announced by a PoolCreated log to the emitter filter
// so later batches include its events. It reports whether a pool was added.
func (r *Runner) follow(log types.Log) bool {
	if !r.cfg.FollowCreated || len(r.cfg.Addresses) == 0 {
		return false
	}
	if len(log.Topics) < 2 || log.Topics[0] != r.created {
		return false
	}
	pool := common.BytesToAddress(log.Topics[1].Bytes())
	if !r.watch(pool) {
		return false
	}
	r.logger.Info("follow pool", zap.String("pool", pool.Hex()), zap.Uint64("block_number", log.BlockNumber))
	return true
}

func (r *Runner) watch(pool common.Address) bool {
	if _, ok := r.watched[pool]; ok {
		return false
	}
	r.watched[pool] = struct{}{}
	r.followed = append(r.followed, pool)
	r.cfg.Addresses = append(r.cfg.Addresses, pool)
	return true
}

func (r *Runner) followedHex() []string {
	out := make([]string, len(r.followed))
	for i, pool := range r.followed {
		out[i] = pool.Hex()
	}
	return out
}

// resume applies the checkpoint to span. It rejects a checkpoint written for
// another chain, re-follows the pools recorded in it and reports false when
// every block of span is already stored.
func (r *Runner) resume(chainID uint64, span BlockRange) (BlockRange, bool, error) {
	cp, ok, err := r.checkpoint.Load()
	if err != nil || !ok {
		return span, err == nil, err
	}
	if cp.ChainID != 0 && cp.ChainID != chainID {
		return span, false, fmt.Errorf("checkpoint chain id %d does not match rpc chain id %d", cp.ChainID, chainID)
	}

	pools, err := ParseAddresses(cp.Pools)
	if err != nil {
		return span, false, fmt.Errorf("checkpoint pools: %w", err)
	}
	if r.cfg.FollowCreated && len(r.cfg.Addresses) > 0 {
		for _, pool := range pools {
			r.watch(pool)
		}
	}

	rest, ok := span.trimThrough(cp.LastProcessedBlock)
	if ok && rest != span {
		r.logger.Info("resume from checkpoint",
			zap.Uint64("last_processed", cp.LastProcessedBlock),
			zap.Uint64("from", rest.From),
			zap.Int("followed_pools", len(r.followed)),
		)
	}
	return rest, ok, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampsWithRetry(ctx context.Context, blocks []uint64) (map[uint64]uint64, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	var times map[uint64]uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		times, err = r.chain.BlockTimestamps(ctx, blocks)
		if err != nil {
			r.logger.Warn("block timestamps fetch failed", zap.Error(err), zap.Int("blocks", len(blocks)))
		}
		return err
	})
	return times, err
}
