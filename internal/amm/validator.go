// Package amm holds the pure integer math of a constant-product pool.
//
// Every function is deterministic given a ledger snapshot and the call
// inputs. Results are always rounded down, so a participant can never
// receive more than the exact rational share the invariant allows.
package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPointsDenominator is 100% expressed in basis points.
const BasisPointsDenominator = 10_000

var (
	ErrZeroAmount    = errors.New("amount must be greater than zero")
	ErrOverflow      = errors.New("amount overflows")
	ErrRatioMismatch = errors.New("deposit ratio does not match reserves")
	ErrNoLiquidity   = errors.New("pool has no liquidity")
	ErrInvalidFee    = errors.New("fee must be below 10000 basis points")
	ErrZeroUnits     = errors.New("deposit too small to mint ownership units")
	ErrZeroOutput    = errors.New("output rounds to zero")
	ErrExceedsSupply = errors.New("units exceed ownership supply")
)

var bpsDenominator = uint256.NewInt(BasisPointsDenominator)

// ValidateFee rejects fee rates that would swallow the whole input.
func ValidateFee(feeBps uint16) error {
	if feeBps >= BasisPointsDenominator {
		return ErrInvalidFee
	}
	return nil
}

// BootstrapUnits returns floor(sqrt(amountA * amountB)) for the first deposit
// into an empty pool. The product is taken at 512 bits so it cannot overflow.
func BootstrapUnits(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() || amountB.IsZero() {
		return nil, ErrZeroAmount
	}
	product := new(big.Int).Mul(amountA.ToBig(), amountB.ToBig())
	root := new(big.Int).Sqrt(product)
	units, overflow := uint256.FromBig(root)
	if overflow {
		return nil, ErrOverflow
	}
	return units, nil
}

// RatioMatches reports whether amountA * reserveB == amountB * reserveA.
func RatioMatches(amountA, amountB, reserveA, reserveB *uint256.Int) bool {
	left := new(big.Int).Mul(amountA.ToBig(), reserveB.ToBig())
	right := new(big.Int).Mul(amountB.ToBig(), reserveA.ToBig())
	return left.Cmp(right) == 0
}

// ProportionalUnits returns floor(amount * supply / reserve).
func ProportionalUnits(amount, reserve, supply *uint256.Int) (*uint256.Int, error) {
	if reserve.IsZero() || supply.IsZero() {
		return nil, ErrNoLiquidity
	}
	units, overflow := new(uint256.Int).MulDivOverflow(amount, supply, reserve)
	if overflow {
		return nil, ErrOverflow
	}
	return units, nil
}

// MintUnits computes the ownership units minted for a deposit of both assets.
// An empty pool takes the bootstrap rule; otherwise the deposit must match
// the reserve ratio exactly and is priced against reserveA.
func MintUnits(amountA, amountB, reserveA, reserveB, supply *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() || amountB.IsZero() {
		return nil, ErrZeroAmount
	}
	if reserveA.IsZero() && reserveB.IsZero() {
		return BootstrapUnits(amountA, amountB)
	}
	if !RatioMatches(amountA, amountB, reserveA, reserveB) {
		return nil, ErrRatioMismatch
	}
	units, err := ProportionalUnits(amountA, reserveA, supply)
	if err != nil {
		return nil, err
	}
	if units.IsZero() {
		return nil, ErrZeroUnits
	}
	return units, nil
}

// WithdrawalSplit returns floor(units * reserveX / supply) for both assets.
// Burning the whole supply returns the reserves exactly.
func WithdrawalSplit(units, reserveA, reserveB, supply *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if units.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if supply.IsZero() {
		return nil, nil, ErrNoLiquidity
	}
	if units.Gt(supply) {
		return nil, nil, ErrExceedsSupply
	}
	if units.Eq(supply) {
		return reserveA.Clone(), reserveB.Clone(), nil
	}
	outA, overflowA := new(uint256.Int).MulDivOverflow(units, reserveA, supply)
	outB, overflowB := new(uint256.Int).MulDivOverflow(units, reserveB, supply)
	if overflowA || overflowB {
		return nil, nil, ErrOverflow
	}
	if outA.IsZero() && outB.IsZero() {
		return nil, nil, ErrZeroOutput
	}
	return outA, outB, nil
}

// AmountInAfterFee returns amountIn * (10000 - feeBps) / 10000, truncated.
func AmountInAfterFee(amountIn *uint256.Int, feeBps uint16) *uint256.Int {
	keep := uint256.NewInt(BasisPointsDenominator - uint64(feeBps))
	// The result never exceeds amountIn, so the 512-bit division cannot overflow.
	out, _ := new(uint256.Int).MulDivOverflow(amountIn, keep, bpsDenominator)
	return out
}

// FeePortion returns the part of amountIn retained by the pool as fee.
func FeePortion(amountIn *uint256.Int, feeBps uint16) *uint256.Int {
	return new(uint256.Int).Sub(amountIn, AmountInAfterFee(amountIn, feeBps))
}

// SwapOutput prices amountIn against the constant-product curve net of fee:
//
//	out = floor(afterFee * reserveOut / (reserveIn + afterFee))
//
// reserveIn must be positive, which makes out strictly less than reserveOut.
func SwapOutput(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrZeroAmount
	}
	if err := ValidateFee(feeBps); err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrNoLiquidity
	}
	if _, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn); overflow {
		return nil, ErrOverflow
	}

	afterFee := AmountInAfterFee(amountIn, feeBps)
	denominator, overflow := new(uint256.Int).AddOverflow(reserveIn, afterFee)
	if overflow {
		return nil, ErrOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(afterFee, reserveOut, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	if out.IsZero() {
		return nil, ErrZeroOutput
	}
	return out, nil
}

// Product returns reserveA * reserveB at full precision.
func Product(reserveA, reserveB *uint256.Int) *big.Int {
	return new(big.Int).Mul(reserveA.ToBig(), reserveB.ToBig())
}
