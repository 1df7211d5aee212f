package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	DepositCount   uint64
	WithdrawCount  uint64
	VolumeA        string
	VolumeB        string
	FeeA           string
	FeeB           string
	FeeRateA       *string
	FeeRateB       *string
	ReserveA       *string
	ReserveB       *string
	APR            *string
	FeeMethod      string
	TVLMethod      string
}
