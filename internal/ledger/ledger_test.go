package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestLedgerLifecycle(t *testing.T) {
	l := New()
	require.True(t, l.Snapshot().Empty())
	require.Zero(t, l.Version())

	require.NoError(t, l.Deposit(l.Snapshot(), u(1000), u(4000), u(2000)))
	snap := l.Snapshot()
	require.Equal(t, uint64(1000), snap.ReserveA.Uint64())
	require.Equal(t, uint64(4000), snap.ReserveB.Uint64())
	require.Equal(t, uint64(2000), snap.Supply.Uint64())
	require.Equal(t, uint64(1), snap.Version)

	require.NoError(t, l.Swap(l.Snapshot(), true, u(100), u(360)))
	snap = l.Snapshot()
	require.Equal(t, uint64(1100), snap.ReserveA.Uint64())
	require.Equal(t, uint64(3640), snap.ReserveB.Uint64())

	require.NoError(t, l.Swap(l.Snapshot(), false, u(40), u(12)))
	snap = l.Snapshot()
	require.Equal(t, uint64(1088), snap.ReserveA.Uint64())
	require.Equal(t, uint64(3680), snap.ReserveB.Uint64())
	require.Equal(t, uint64(2000), snap.Supply.Uint64())

	require.NoError(t, l.Withdraw(l.Snapshot(), u(1088), u(3680), u(2000)))
	require.True(t, l.Snapshot().Empty())
	require.Equal(t, uint64(4), l.Version())
}

func TestLedgerRejectsStaleBase(t *testing.T) {
	l := New()
	base := l.Snapshot()
	require.NoError(t, l.Deposit(base, u(10), u(10), u(10)))

	err := l.Deposit(base, u(10), u(10), u(10))
	require.ErrorIs(t, err, ErrStale)
	after := l.Snapshot()
	require.Equal(t, uint64(10), after.ReserveA.Uint64())
}

func TestLedgerUnderflowLeavesStateUntouched(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(l.Snapshot(), u(10), u(10), u(10)))
	before := l.Snapshot()

	require.ErrorIs(t, l.Withdraw(before, u(11), u(1), u(1)), ErrUnderflow)
	require.ErrorIs(t, l.Swap(before, true, u(1), u(11)), ErrUnderflow)
	require.Equal(t, before, l.Snapshot())
}

func TestLedgerOverflow(t *testing.T) {
	l := New()
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, l.Deposit(l.Snapshot(), max, u(1), u(1)))
	require.ErrorIs(t, l.Deposit(l.Snapshot(), u(1), u(1), u(1)), ErrOverflow)
	require.ErrorIs(t, l.Swap(l.Snapshot(), true, u(1), u(0)), ErrOverflow)
}

func TestLedgerConservation(t *testing.T) {
	l := New()
	require.Error(t, l.Deposit(l.Snapshot(), u(10), u(10), u(0)), "reserves without supply")
	require.Error(t, l.Deposit(l.Snapshot(), u(0), u(0), u(5)), "supply without reserves")
	require.Zero(t, l.Version())

	require.NoError(t, l.Deposit(l.Snapshot(), u(10), u(10), u(10)))
	require.Error(t, l.Withdraw(l.Snapshot(), u(10), u(10), u(5)), "draining reserves must burn all units")
}

func TestLedgerRestore(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(l.Snapshot(), u(10), u(20), u(14)))
	base := l.Snapshot()

	require.NoError(t, l.Swap(base, true, u(5), u(6)))
	l.Restore(base)

	restored := l.Snapshot()
	require.Equal(t, base.ReserveA, restored.ReserveA)
	require.Equal(t, base.ReserveB, restored.ReserveB)
	require.Equal(t, base.Supply, restored.Supply)
	require.Greater(t, restored.Version, base.Version, "versions are never reused")
}
