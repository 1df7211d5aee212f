package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityPool/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// PoolDecoder decodes factory and pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool decoder.
func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{
		poolABI:     parsed,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid log address: %s", log.Address)
	}
	emitter := common.HexToAddress(log.Address)

	switch name {
	case "PoolCreated":
		decoded, err := d.decodePoolCreated(log)
		if err != nil {
			return nil, err
		}
		meta := model.PoolMeta{
			TokenA:         decoded.TokenA,
			TokenB:         decoded.TokenB,
			OwnershipToken: decoded.OwnershipToken,
			FeeBps:         decoded.FeeBps,
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(common.HexToAddress(decoded.Pool), meta)
		}
		return buildTypedEvent(log, name, decoded, meta), nil
	case "LiquidityAdded":
		decoded, err := d.decodeLiquidityAdded(log)
		if err != nil {
			return nil, err
		}
		meta, err := getPoolMeta(ctx, emitter, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		meta.ReserveA, meta.ReserveB = decoded.ReserveA, decoded.ReserveB
		return buildTypedEvent(log, name, decoded, meta), nil
	case "LiquidityRemoved":
		decoded, err := d.decodeLiquidityRemoved(log)
		if err != nil {
			return nil, err
		}
		meta, err := getPoolMeta(ctx, emitter, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		meta.ReserveA, meta.ReserveB = decoded.ReserveA, decoded.ReserveB
		return buildTypedEvent(log, name, decoded, meta), nil
	case "TokenSwapped":
		decoded, err := d.decodeTokenSwapped(log)
		if err != nil {
			return nil, err
		}
		meta, err := getPoolMeta(ctx, emitter, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(decoded.TokenIn, meta.TokenA) {
			meta.ReserveA, meta.ReserveB = decoded.ReserveIn, decoded.ReserveOut
		} else {
			meta.ReserveA, meta.ReserveB = decoded.ReserveOut, decoded.ReserveIn
		}
		return buildTypedEvent(log, name, decoded, meta), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "poolcreated", "pool_created":
		return "PoolCreated"
	case "liquidityadded", "liquidity_added", "deposit":
		return "LiquidityAdded"
	case "liquidityremoved", "liquidity_removed", "withdraw":
		return "LiquidityRemoved"
	case "tokenswapped", "token_swapped", "swap":
		return "TokenSwapped"
	default:
		return ""
	}
}

func getPoolMeta(ctx DecodeContext, pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var meta model.PoolMeta
	var ok bool
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(pool)
	}
	if ok && !ctx.IncludeLiveMeta {
		return meta, nil
	}
	if ctx.Chain == nil {
		if ok {
			return meta, nil
		}
		return model.PoolMeta{}, fmt.Errorf("pool %s: metadata unavailable without chain client", pool.Hex())
	}

	callCtx := ctx.context()

	if !ok {
		var err error
		meta, err = FetchPoolMeta(callCtx, ctx.Chain, pool, ctx.TokenMetaCache, ctx.Logger)
		if err != nil {
			return model.PoolMeta{}, err
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(pool, meta)
		}
	}

	if ctx.IncludeLiveMeta {
		reserveA, reserveB, err := FetchPoolReserves(callCtx, ctx.Chain, pool, blockNumber)
		if err == nil {
			meta.ReserveA = reserveA.String()
			meta.ReserveB = reserveB.String()
		} else if ctx.Logger != nil {
			ctx.Logger.Debug("live reserves unavailable", zap.String("pool", pool.Hex()), zap.Error(err))
		}
	}
	return meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	return &model.TypedEvent{
		EventRef:  log.Ref(),
		EventName: name,
		Decoded:   decoded,
		PoolMeta:  meta,
		Raw:       &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
}

func (d *PoolDecoder) decodePoolCreated(log model.LogRecord) (model.PoolCreatedData, error) {
	event := d.poolABI.Events["PoolCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.PoolCreatedData{}, err
	}

	var indexed struct {
		Pool   common.Address
		TokenA common.Address
		TokenB common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.PoolCreatedData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	if len(values) != 4 {
		return model.PoolCreatedData{}, fmt.Errorf("unexpected pool created values: %d", len(values))
	}

	ownership, err := asAddress(values[0])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	fee, err := asBigInt(values[1])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	caller, err := asAddress(values[2])
	if err != nil {
		return model.PoolCreatedData{}, err
	}
	ts, err := asBigInt(values[3])
	if err != nil {
		return model.PoolCreatedData{}, err
	}

	return model.PoolCreatedData{
		Pool:           indexed.Pool.Hex(),
		TokenA:         indexed.TokenA.Hex(),
		TokenB:         indexed.TokenB.Hex(),
		OwnershipToken: ownership.Hex(),
		FeeBps:         uint16(fee.Uint64()),
		Timestamp:      ts.Uint64(),
		Caller:         caller.Hex(),
	}, nil
}

// liquidityValues holds the shared layout of LiquidityAdded and LiquidityRemoved.
type liquidityValues struct {
	caller   common.Address
	tokenA   common.Address
	tokenB   common.Address
	amountA  *big.Int
	amountB  *big.Int
	units    *big.Int
	reserveA *big.Int
	reserveB *big.Int
	ts       uint64
}

func (d *PoolDecoder) decodeLiquidity(name string, log model.LogRecord) (liquidityValues, error) {
	event := d.poolABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return liquidityValues{}, err
	}

	var indexed struct {
		Caller common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return liquidityValues{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return liquidityValues{}, err
	}
	if len(values) != 8 {
		return liquidityValues{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}

	out := liquidityValues{caller: indexed.Caller}
	if out.tokenA, err = asAddress(values[0]); err != nil {
		return liquidityValues{}, err
	}
	if out.tokenB, err = asAddress(values[1]); err != nil {
		return liquidityValues{}, err
	}
	nums := make([]*big.Int, 6)
	for i := range nums {
		if nums[i], err = asBigInt(values[2+i]); err != nil {
			return liquidityValues{}, err
		}
	}
	out.amountA, out.amountB, out.units = nums[0], nums[1], nums[2]
	out.reserveA, out.reserveB = nums[3], nums[4]
	out.ts = nums[5].Uint64()
	return out, nil
}

func (d *PoolDecoder) decodeLiquidityAdded(log model.LogRecord) (model.LiquidityAddedData, error) {
	v, err := d.decodeLiquidity("LiquidityAdded", log)
	if err != nil {
		return model.LiquidityAddedData{}, err
	}
	return model.LiquidityAddedData{
		Pool:        common.HexToAddress(log.Address).Hex(),
		TokenA:      v.tokenA.Hex(),
		TokenB:      v.tokenB.Hex(),
		AmountA:     v.amountA.String(),
		AmountB:     v.amountB.String(),
		UnitsMinted: v.units.String(),
		ReserveA:    v.reserveA.String(),
		ReserveB:    v.reserveB.String(),
		Timestamp:   v.ts,
		Caller:      v.caller.Hex(),
	}, nil
}

func (d *PoolDecoder) decodeLiquidityRemoved(log model.LogRecord) (model.LiquidityRemovedData, error) {
	v, err := d.decodeLiquidity("LiquidityRemoved", log)
	if err != nil {
		return model.LiquidityRemovedData{}, err
	}
	return model.LiquidityRemovedData{
		Pool:        common.HexToAddress(log.Address).Hex(),
		TokenA:      v.tokenA.Hex(),
		TokenB:      v.tokenB.Hex(),
		AmountA:     v.amountA.String(),
		AmountB:     v.amountB.String(),
		UnitsBurned: v.units.String(),
		ReserveA:    v.reserveA.String(),
		ReserveB:    v.reserveB.String(),
		Timestamp:   v.ts,
		Caller:      v.caller.Hex(),
	}, nil
}

func (d *PoolDecoder) decodeTokenSwapped(log model.LogRecord) (model.TokenSwappedData, error) {
	event := d.poolABI.Events["TokenSwapped"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.TokenSwappedData{}, err
	}

	var indexed struct {
		Caller  common.Address
		TokenIn common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.TokenSwappedData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.TokenSwappedData{}, err
	}
	if len(values) != 6 {
		return model.TokenSwappedData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	tokenOut, err := asAddress(values[0])
	if err != nil {
		return model.TokenSwappedData{}, err
	}
	nums := make([]*big.Int, 5)
	for i := range nums {
		if nums[i], err = asBigInt(values[1+i]); err != nil {
			return model.TokenSwappedData{}, err
		}
	}

	return model.TokenSwappedData{
		Pool:       common.HexToAddress(log.Address).Hex(),
		TokenIn:    indexed.TokenIn.Hex(),
		TokenOut:   tokenOut.Hex(),
		AmountIn:   nums[0].String(),
		AmountOut:  nums[1].String(),
		ReserveIn:  nums[2].String(),
		ReserveOut: nums[3].String(),
		Timestamp:  nums[4].Uint64(),
		Caller:     indexed.Caller.Hex(),
	}, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
