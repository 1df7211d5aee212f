package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"liquidityPool/internal/amm"
	"liquidityPool/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID       uint64
	PoolAddress   string
	PoolMeta      model.PoolMeta
	WindowStart   uint64
	WindowEnd     uint64
	SwapCount     uint64
	DepositCount  uint64
	WithdrawCount uint64
	VolumeA       *big.Int
	VolumeB       *big.Int
	FeeA          *big.Int
	FeeB          *big.Int
	ReserveA      *big.Int
	ReserveB      *big.Int
	LastBlock     uint64
	LastTS        uint64
	FirstBlock    uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     big.NewInt(0),
		VolumeB:     big.NewInt(0),
		FeeA:        big.NewInt(0),
		FeeB:        big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
}

// AddEvent folds one pool event into the window. Events of other kinds are
// ignored.
func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if !a.PoolMeta.Complete() && record.PoolMeta.Complete() {
		a.PoolMeta = record.PoolMeta
	}

	var err error
	switch record.EventName {
	case "TokenSwapped":
		var swap model.TokenSwappedData
		if err = record.DecodePayload(&swap); err == nil {
			err = a.applySwap(swap)
		}
	case "LiquidityAdded":
		var deposit model.LiquidityAddedData
		if err = record.DecodePayload(&deposit); err == nil {
			a.DepositCount++
		}
	case "LiquidityRemoved":
		var withdraw model.LiquidityRemovedData
		if err = record.DecodePayload(&withdraw); err == nil {
			a.WithdrawCount++
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
		a.observeReserves(record.PoolMeta)
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	return nil
}

func (a *Accumulator) observeReserves(meta model.PoolMeta) {
	if meta.ReserveA == "" || meta.ReserveB == "" {
		return
	}
	reserveA, errA := parseBigInt(meta.ReserveA)
	reserveB, errB := parseBigInt(meta.ReserveB)
	if errA != nil || errB != nil {
		return
	}
	a.ReserveA, a.ReserveB = reserveA, reserveB
}

func (a *Accumulator) applySwap(swap model.TokenSwappedData) error {
	amountIn, err := parseAmount(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseAmount(swap.AmountOut)
	if err != nil {
		return err
	}

	fee := amm.FeePortion(amountIn, a.PoolMeta.FeeBps).ToBig()
	switch {
	case strings.EqualFold(swap.TokenIn, a.PoolMeta.TokenA):
		a.VolumeA.Add(a.VolumeA, amountIn.ToBig())
		a.VolumeB.Add(a.VolumeB, amountOut.ToBig())
		a.FeeA.Add(a.FeeA, fee)
	case strings.EqualFold(swap.TokenIn, a.PoolMeta.TokenB):
		a.VolumeB.Add(a.VolumeB, amountIn.ToBig())
		a.VolumeA.Add(a.VolumeA, amountOut.ToBig())
		a.FeeB.Add(a.FeeB, fee)
	default:
		return fmt.Errorf("swap token %s not in pool %s", swap.TokenIn, a.PoolAddress)
	}

	a.SwapCount++
	return nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return uint256.NewInt(0), nil
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return parsed, nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
