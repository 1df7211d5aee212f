package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityPool/internal/chain"
	"liquidityPool/internal/dex"
	"liquidityPool/internal/model"
	"liquidityPool/internal/storage"
)

const (
	feeMethodBps      = "fee_bps"
	tvlMethodEvent    = "event_reserves"
	tvlMethodReserves = "get_reserves_block"
	tvlMethodBlock    = "balance_of_block"
	tvlMethodLatest   = "balance_of_latest"
	tvlMethodNone     = "unavailable"
)

// MetricsStore receives pool records and window metrics. *postgres.Store
// satisfies it.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
	// TokenMeta seeds decimals, for example from a decode run that already
	// fetched token metadata. Optional.
	TokenMeta *dex.TokenMetaCache
}

// Aggregator aggregates typed pool events into window metrics. The chain
// client is optional; without it amounts stay in raw units and TVL comes
// only from event reserves.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	chainClient  *chain.Client
	logger       *zap.Logger
	decimals     *tokenDecimals
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
	poolCreated  map[string]model.PoolCreatedData
}

func NewAggregator(cfg Config, store MetricsStore, chainClient *chain.Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		chainClient:  chainClient,
		logger:       logger,
		decimals:     newTokenDecimals(cfg.TokenMeta, chainClient, logger),
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
		poolCreated:  make(map[string]model.PoolCreatedData),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return a.RunReader(ctx, file)
}

// RunReader executes aggregation over a typed events JSONL stream.
func (a *Aggregator) RunReader(ctx context.Context, in io.Reader) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, windows, skipped, failed int

	err = storage.ScanJSONL(in, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}

		if record.EventName == "PoolCreated" {
			if pool, ok := a.registerCreated(record); ok {
				pools = append(pools, pool)
			}
			return nil
		}

		if record.Timestamp <= startTs {
			skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				windows++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(ctx, acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			windows++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	if !acc.PoolMeta.Complete() {
		if created, ok := a.poolCreated[poolKey(acc.PoolAddress)]; ok {
			acc.PoolMeta.TokenA = created.TokenA
			acc.PoolMeta.TokenB = created.TokenB
			acc.PoolMeta.OwnershipToken = created.OwnershipToken
			acc.PoolMeta.FeeBps = created.FeeBps
		}
	}
	poolMeta := acc.PoolMeta
	if !poolMeta.Complete() {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	decimalsA := a.decimals.lookup(ctx, poolMeta.TokenA)
	decimalsB := a.decimals.lookup(ctx, poolMeta.TokenB)

	reserveA, reserveB, tvlMethod := a.resolveTVL(ctx, acc)

	var reserveAStr, reserveBStr *string
	if reserveA != nil {
		val := formatTokenAmount(reserveA, decimalsA)
		reserveAStr = &val
	}
	if reserveB != nil {
		val := formatTokenAmount(reserveB, decimalsB)
		reserveBStr = &val
	}

	feeRateA, feeRateB := computeFeeRates(acc.FeeA, acc.FeeB, reserveA, reserveB)
	apr := computeAPR(feeRateA, feeRateB, a.cfg.WindowSeconds)

	metrics := &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		DepositCount:   acc.DepositCount,
		WithdrawCount:  acc.WithdrawCount,
		VolumeA:        formatTokenAmount(acc.VolumeA, decimalsA),
		VolumeB:        formatTokenAmount(acc.VolumeB, decimalsB),
		FeeA:           formatTokenAmount(acc.FeeA, decimalsA),
		FeeB:           formatTokenAmount(acc.FeeB, decimalsB),
		FeeRateA:       feeRateA,
		FeeRateB:       feeRateB,
		ReserveA:       reserveAStr,
		ReserveB:       reserveBStr,
		APR:            apr,
		FeeMethod:      feeMethodBps,
		TVLMethod:      tvlMethod,
	}

	return metrics, poolRecord
}

// resolveTVL prefers the reserves reported by the window's last event and
// falls back to balanceOf calls when a chain client is configured.
func (a *Aggregator) resolveTVL(ctx context.Context, acc *Accumulator) (*big.Int, *big.Int, string) {
	if acc.ReserveA != nil && acc.ReserveB != nil {
		return acc.ReserveA, acc.ReserveB, tvlMethodEvent
	}
	if a.chainClient == nil || acc.LastBlock == 0 {
		return nil, nil, tvlMethodNone
	}
	balanceA, balanceB, method, err := a.fetchTVL(ctx, acc.PoolMeta.TokenA, acc.PoolMeta.TokenB, acc.PoolAddress, acc.LastBlock)
	if err != nil {
		a.logger.Warn("tvl fetch failed", zap.String("pool", acc.PoolAddress), zap.Error(err))
		return nil, nil, tvlMethodNone
	}
	return balanceA, balanceB, method
}

func (a *Aggregator) registerCreated(record model.TypedEventRecord) (model.Pool, bool) {
	var created model.PoolCreatedData
	if err := record.DecodePayload(&created); err != nil {
		a.logger.Warn("pool created payload", zap.Error(err))
		return model.Pool{}, false
	}
	key := poolKey(created.Pool)
	a.poolCreated[key] = created

	pool := model.Pool{
		ChainID:        record.ChainID,
		Address:        created.Pool,
		TokenA:         created.TokenA,
		TokenB:         created.TokenB,
		OwnershipToken: created.OwnershipToken,
		FeeBps:         created.FeeBps,
		FirstSeenBlock: record.BlockNumber,
	}
	if existing, ok := a.poolSeen[key]; ok && existing.FirstSeenBlock <= pool.FirstSeenBlock {
		return model.Pool{}, false
	}
	a.poolSeen[key] = pool
	return pool, true
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		TokenA:         acc.PoolMeta.TokenA,
		TokenB:         acc.PoolMeta.TokenB,
		OwnershipToken: acc.PoolMeta.OwnershipToken,
		FeeBps:         acc.PoolMeta.FeeBps,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.FirstSeenBlock <= pool.FirstSeenBlock {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

// Pools returns the pools registered so far, keyed by lowercase address.
func (a *Aggregator) Pools() map[string]model.Pool {
	out := make(map[string]model.Pool, len(a.poolSeen))
	for k, v := range a.poolSeen {
		out[k] = v
	}
	return out
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

// SetTokenDecimals records known decimals so no RPC lookup is needed.
func (a *Aggregator) SetTokenDecimals(token common.Address, decimals uint8) {
	a.decimals.pin(token, decimals)
}
