// Package ledger holds the reserve bookkeeping of a single pool.
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow  = errors.New("ledger overflow")
	ErrUnderflow = errors.New("ledger underflow")
	ErrStale     = errors.New("ledger version changed")
)

// Snapshot is an immutable copy of the ledger at one version.
type Snapshot struct {
	ReserveA uint256.Int
	ReserveB uint256.Int
	Supply   uint256.Int
	Version  uint64
}

// Empty reports whether the pool holds nothing and has no holders.
func (s Snapshot) Empty() bool {
	return s.ReserveA.IsZero() && s.ReserveB.IsZero() && s.Supply.IsZero()
}

// Ledger tracks reserveA, reserveB and the ownership supply. Each mutation
// bumps the version; the zero value is an empty pool at version 0.
type Ledger struct {
	reserveA uint256.Int
	reserveB uint256.Int
	supply   uint256.Int
	version  uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		ReserveA: l.reserveA,
		ReserveB: l.reserveB,
		Supply:   l.supply,
		Version:  l.version,
	}
}

// Version returns the number of mutations applied so far.
func (l *Ledger) Version() uint64 {
	return l.version
}

// Deposit credits both reserves and the supply. base must be the snapshot the
// amounts were computed from.
func (l *Ledger) Deposit(base Snapshot, amountA, amountB, units *uint256.Int) error {
	if err := l.checkBase(base); err != nil {
		return err
	}
	reserveA, overflowA := new(uint256.Int).AddOverflow(&l.reserveA, amountA)
	reserveB, overflowB := new(uint256.Int).AddOverflow(&l.reserveB, amountB)
	supply, overflowS := new(uint256.Int).AddOverflow(&l.supply, units)
	if overflowA || overflowB || overflowS {
		return ErrOverflow
	}
	return l.commit(reserveA, reserveB, supply)
}

// Withdraw debits both reserves and burns units from the supply.
func (l *Ledger) Withdraw(base Snapshot, amountA, amountB, units *uint256.Int) error {
	if err := l.checkBase(base); err != nil {
		return err
	}
	reserveA, underflowA := new(uint256.Int).SubOverflow(&l.reserveA, amountA)
	reserveB, underflowB := new(uint256.Int).SubOverflow(&l.reserveB, amountB)
	supply, underflowS := new(uint256.Int).SubOverflow(&l.supply, units)
	if underflowA || underflowB || underflowS {
		return ErrUnderflow
	}
	return l.commit(reserveA, reserveB, supply)
}

// Swap credits amountIn to the input side and debits amountOut from the other.
func (l *Ledger) Swap(base Snapshot, inIsA bool, amountIn, amountOut *uint256.Int) error {
	if err := l.checkBase(base); err != nil {
		return err
	}
	in, out := &l.reserveA, &l.reserveB
	if !inIsA {
		in, out = out, in
	}
	newIn, overflow := new(uint256.Int).AddOverflow(in, amountIn)
	if overflow {
		return ErrOverflow
	}
	newOut, underflow := new(uint256.Int).SubOverflow(out, amountOut)
	if underflow {
		return ErrUnderflow
	}
	if inIsA {
		return l.commit(newIn, newOut, &l.supply)
	}
	return l.commit(newOut, newIn, &l.supply)
}

// Restore rolls the ledger back to a snapshot taken earlier in the same call.
// The version moves forward so observers never see a reused version number.
func (l *Ledger) Restore(s Snapshot) {
	l.reserveA = s.ReserveA
	l.reserveB = s.ReserveB
	l.supply = s.Supply
	l.version++
}

func (l *Ledger) checkBase(base Snapshot) error {
	if base.Version != l.version {
		return fmt.Errorf("%w: computed at %d, ledger at %d", ErrStale, base.Version, l.version)
	}
	return nil
}

func (l *Ledger) commit(reserveA, reserveB, supply *uint256.Int) error {
	// Ownership units exist exactly when the pool holds something.
	holds := !reserveA.IsZero() || !reserveB.IsZero()
	if holds != !supply.IsZero() {
		return fmt.Errorf("ledger conservation violated: reserves (%s, %s), supply %s",
			reserveA.Dec(), reserveB.Dec(), supply.Dec())
	}
	l.reserveA = *reserveA
	l.reserveB = *reserveB
	l.supply = *supply
	l.version++
	return nil
}
