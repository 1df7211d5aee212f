package pool

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	EventPoolCreated      = "PoolCreated"
	EventLiquidityAdded   = "LiquidityAdded"
	EventLiquidityRemoved = "LiquidityRemoved"
	EventTokenSwapped     = "TokenSwapped"
)

// Event is a domain event emitted after a committed call.
type Event interface {
	EventName() string
	PoolAddress() common.Address
	EventTime() time.Time
}

// PoolCreated is emitted once by the factory for each pool.
type PoolCreated struct {
	Pool           common.Address
	TokenA         common.Address
	TokenB         common.Address
	OwnershipToken common.Address
	FeeBps         uint16
	Timestamp      time.Time
	Caller         common.Address
}

// LiquidityAdded reports a deposit and the reserves after it.
type LiquidityAdded struct {
	Pool        common.Address
	TokenA      common.Address
	TokenB      common.Address
	AmountA     *uint256.Int
	AmountB     *uint256.Int
	UnitsMinted *uint256.Int
	ReserveA    *uint256.Int
	ReserveB    *uint256.Int
	Timestamp   time.Time
	Caller      common.Address
}

// LiquidityRemoved reports a withdrawal and the reserves after it.
type LiquidityRemoved struct {
	Pool        common.Address
	TokenA      common.Address
	TokenB      common.Address
	AmountA     *uint256.Int
	AmountB     *uint256.Int
	UnitsBurned *uint256.Int
	ReserveA    *uint256.Int
	ReserveB    *uint256.Int
	Timestamp   time.Time
	Caller      common.Address
}

// TokenSwapped reports a trade. Reserves are given in/out oriented.
type TokenSwapped struct {
	Pool       common.Address
	TokenIn    common.Address
	TokenOut   common.Address
	AmountIn   *uint256.Int
	AmountOut  *uint256.Int
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
	Timestamp  time.Time
	Caller     common.Address
}

func (e PoolCreated) EventName() string           { return EventPoolCreated }
func (e PoolCreated) PoolAddress() common.Address { return e.Pool }
func (e PoolCreated) EventTime() time.Time        { return e.Timestamp }

func (e LiquidityAdded) EventName() string           { return EventLiquidityAdded }
func (e LiquidityAdded) PoolAddress() common.Address { return e.Pool }
func (e LiquidityAdded) EventTime() time.Time        { return e.Timestamp }

func (e LiquidityRemoved) EventName() string           { return EventLiquidityRemoved }
func (e LiquidityRemoved) PoolAddress() common.Address { return e.Pool }
func (e LiquidityRemoved) EventTime() time.Time        { return e.Timestamp }

func (e TokenSwapped) EventName() string           { return EventTokenSwapped }
func (e TokenSwapped) PoolAddress() common.Address { return e.Pool }
func (e TokenSwapped) EventTime() time.Time        { return e.Timestamp }
