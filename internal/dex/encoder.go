package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"liquidityPool/internal/model"
	"liquidityPool/internal/pool"
)

// LogPosition locates an encoded event in a chain. Emitter overrides the
// log address; when zero the event's pool address is used.
type LogPosition struct {
	ChainID     uint64
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint64
	LogIndex    uint64
	Emitter     common.Address
}

// EncodeEvent renders a domain event as the log record a chain would emit
// for it, so simulated runs share the decode and aggregate pipeline.
func EncodeEvent(ev pool.Event, pos LogPosition) (model.LogRecord, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.LogRecord{}, err
	}
	event, ok := parsed.Events[ev.EventName()]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unknown event %s", ev.EventName())
	}

	var (
		indexed []common.Address
		values  []interface{}
	)
	switch e := ev.(type) {
	case pool.PoolCreated:
		indexed = []common.Address{e.Pool, e.TokenA, e.TokenB}
		values = []interface{}{e.OwnershipToken, e.FeeBps, e.Caller, unixSeconds(e)}
	case pool.LiquidityAdded:
		indexed = []common.Address{e.Caller}
		values = []interface{}{
			e.TokenA, e.TokenB,
			toBig(e.AmountA), toBig(e.AmountB), toBig(e.UnitsMinted),
			toBig(e.ReserveA), toBig(e.ReserveB),
			unixSeconds(e),
		}
	case pool.LiquidityRemoved:
		indexed = []common.Address{e.Caller}
		values = []interface{}{
			e.TokenA, e.TokenB,
			toBig(e.AmountA), toBig(e.AmountB), toBig(e.UnitsBurned),
			toBig(e.ReserveA), toBig(e.ReserveB),
			unixSeconds(e),
		}
	case pool.TokenSwapped:
		indexed = []common.Address{e.Caller, e.TokenIn}
		values = []interface{}{
			e.TokenOut,
			toBig(e.AmountIn), toBig(e.AmountOut),
			toBig(e.ReserveIn), toBig(e.ReserveOut),
			unixSeconds(e),
		}
	default:
		return model.LogRecord{}, fmt.Errorf("unsupported event type %T", ev)
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", event.Name, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, event.ID.Hex())
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()).Hex())
	}

	emitter := pos.Emitter
	if emitter == (common.Address{}) {
		emitter = ev.PoolAddress()
	}

	return model.LogRecord{
		ChainID:     pos.ChainID,
		BlockNumber: pos.BlockNumber,
		BlockHash:   pos.BlockHash.Hex(),
		TxHash:      pos.TxHash.Hex(),
		TxIndex:     pos.TxIndex,
		LogIndex:    pos.LogIndex,
		Address:     emitter.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   unixSeconds(ev),
	}, nil
}

func unixSeconds(ev pool.Event) uint64 {
	ts := ev.EventTime().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
