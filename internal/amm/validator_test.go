package amm

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func maxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func TestValidateFee(t *testing.T) {
	require.NoError(t, ValidateFee(0))
	require.NoError(t, ValidateFee(30))
	require.NoError(t, ValidateFee(9999))
	require.ErrorIs(t, ValidateFee(10000), ErrInvalidFee)
	require.ErrorIs(t, ValidateFee(65535), ErrInvalidFee)
}

func TestBootstrapUnits(t *testing.T) {
	cases := []struct {
		a, b uint64
		want uint64
	}{
		{1000, 4000, 2000},
		{1, 1, 1},
		{2, 3, 2},
		{100, 100, 100},
		{1, 1_000_000, 1000},
	}
	for _, tc := range cases {
		got, err := BootstrapUnits(u(tc.a), u(tc.b))
		require.NoError(t, err)
		require.Equal(t, tc.want, got.Uint64(), "sqrt(%d*%d)", tc.a, tc.b)
	}

	_, err := BootstrapUnits(u(0), u(5))
	require.ErrorIs(t, err, ErrZeroAmount)

	// The product of two max values needs 512 bits; the root still fits.
	got, err := BootstrapUnits(maxUint256(), maxUint256())
	require.NoError(t, err)
	require.True(t, got.Eq(maxUint256()))
}

func TestMintUnits(t *testing.T) {
	got, err := MintUnits(u(1000), u(4000), u(0), u(0), u(0))
	require.NoError(t, err)
	require.Equal(t, uint64(2000), got.Uint64())

	got, err = MintUnits(u(500), u(2000), u(1000), u(4000), u(2000))
	require.NoError(t, err)
	require.Equal(t, uint64(1000), got.Uint64())

	_, err = MintUnits(u(500), u(2001), u(1000), u(4000), u(2000))
	require.ErrorIs(t, err, ErrRatioMismatch)

	_, err = MintUnits(u(0), u(1), u(1000), u(4000), u(2000))
	require.ErrorIs(t, err, ErrZeroAmount)

	// A matching deposit too small to earn a whole unit is refused.
	_, err = MintUnits(u(1), u(1), u(1000), u(1000), u(1))
	require.ErrorIs(t, err, ErrZeroUnits)
}

func TestRatioMatchesAtFullWidth(t *testing.T) {
	m := maxUint256()
	require.True(t, RatioMatches(m, m, m, m))
	require.False(t, RatioMatches(m, u(1), m, u(2)))
}

func TestWithdrawalSplit(t *testing.T) {
	outA, outB, err := WithdrawalSplit(u(500), u(1100), u(910), u(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(550), outA.Uint64())
	require.Equal(t, uint64(455), outB.Uint64())

	outA, outB, err = WithdrawalSplit(u(1000), u(1100), u(910), u(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(1100), outA.Uint64())
	require.Equal(t, uint64(910), outB.Uint64())

	_, _, err = WithdrawalSplit(u(1001), u(1100), u(910), u(1000))
	require.ErrorIs(t, err, ErrExceedsSupply)

	_, _, err = WithdrawalSplit(u(1), u(10), u(10), u(1000))
	require.ErrorIs(t, err, ErrZeroOutput)

	_, _, err = WithdrawalSplit(u(1), u(0), u(0), u(0))
	require.ErrorIs(t, err, ErrNoLiquidity)

	_, _, err = WithdrawalSplit(u(0), u(10), u(10), u(10))
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestSwapOutput(t *testing.T) {
	cases := []struct {
		name                   string
		in, reserveIn, reserve uint64
		fee                    uint16
		want                   uint64
		err                    error
	}{
		{name: "fee 30", in: 100, reserveIn: 1000, reserve: 1000, fee: 30, want: 90},
		{name: "no fee", in: 100, reserveIn: 1000, reserve: 1000, fee: 0, want: 90},
		{name: "uneven reserves", in: 200, reserveIn: 455, reserve: 550, fee: 30, want: 167},
		{name: "large trade", in: 1_000_000, reserveIn: 1000, reserve: 1000, fee: 30, want: 998},
		{name: "fee eats input", in: 1, reserveIn: 1000, reserve: 1000, fee: 30, err: ErrZeroOutput},
		{name: "empty pool", in: 100, reserveIn: 0, reserve: 0, fee: 30, err: ErrNoLiquidity},
		{name: "zero in", in: 0, reserveIn: 1000, reserve: 1000, fee: 30, err: ErrZeroAmount},
		{name: "invalid fee", in: 100, reserveIn: 1000, reserve: 1000, fee: 10000, err: ErrInvalidFee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SwapOutput(u(tc.in), u(tc.reserveIn), u(tc.reserve), tc.fee)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Uint64())
		})
	}

	_, err := SwapOutput(maxUint256(), u(1), u(1000), 0)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestFeePortion(t *testing.T) {
	require.Equal(t, uint64(1), FeePortion(u(100), 30).Uint64())
	require.Equal(t, uint64(3), FeePortion(u(1000), 30).Uint64())
	require.Equal(t, uint64(1), FeePortion(u(1), 30).Uint64())
	require.Equal(t, uint64(0), FeePortion(u(100), 0).Uint64())
	require.Equal(t, uint64(99), AmountInAfterFee(u(100), 30).Uint64())
}

func TestProduct(t *testing.T) {
	want := new(big.Int).Mul(maxUint256().ToBig(), big.NewInt(2))
	require.Zero(t, Product(maxUint256(), u(2)).Cmp(want))
}

func TestSwapKeepsInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reserveIn := rapid.Uint64Range(1, 1<<40).Draw(t, "reserveIn")
		reserveOut := rapid.Uint64Range(1, 1<<40).Draw(t, "reserveOut")
		amountIn := rapid.Uint64Range(1, 1<<40).Draw(t, "amountIn")
		fee := uint16(rapid.IntRange(0, 9999).Draw(t, "fee"))

		out, err := SwapOutput(u(amountIn), u(reserveIn), u(reserveOut), fee)
		if err != nil {
			if err != ErrZeroOutput {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
		if !out.Lt(u(reserveOut)) {
			t.Fatalf("output %s drains reserve %d", out.Dec(), reserveOut)
		}

		before := Product(u(reserveIn), u(reserveOut))
		after := Product(u(reserveIn+amountIn), new(uint256.Int).Sub(u(reserveOut), out))
		if after.Cmp(before) < 0 {
			t.Fatalf("product fell from %s to %s", before, after)
		}
	})
}

func TestSwapMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reserveIn := rapid.Uint64Range(1000, 1<<40).Draw(t, "reserveIn")
		reserveOut := rapid.Uint64Range(1000, 1<<40).Draw(t, "reserveOut")
		small := rapid.Uint64Range(1, 1<<30).Draw(t, "small")
		extra := rapid.Uint64Range(0, 1<<30).Draw(t, "extra")
		fee := uint16(rapid.IntRange(0, 9999).Draw(t, "fee"))

		outSmall, errSmall := SwapOutput(u(small), u(reserveIn), u(reserveOut), fee)
		outLarge, errLarge := SwapOutput(u(small+extra), u(reserveIn), u(reserveOut), fee)
		if errLarge != nil {
			if errSmall == nil {
				t.Fatalf("larger input failed (%v) where smaller succeeded", errLarge)
			}
			return
		}
		if errSmall == nil && outLarge.Lt(outSmall) {
			t.Fatalf("output fell from %s to %s as input grew", outSmall.Dec(), outLarge.Dec())
		}
	})
}

func TestWithdrawalNeverOverpaysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reserveA := rapid.Uint64Range(1, 1<<50).Draw(t, "reserveA")
		reserveB := rapid.Uint64Range(1, 1<<50).Draw(t, "reserveB")
		supply := rapid.Uint64Range(1, 1<<50).Draw(t, "supply")
		units := rapid.Uint64Range(1, supply).Draw(t, "units")

		outA, outB, err := WithdrawalSplit(u(units), u(reserveA), u(reserveB), u(supply))
		if err != nil {
			if err != ErrZeroOutput {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
		// outA * supply <= units * reserveA, and likewise for B.
		for _, side := range []struct {
			out     *uint256.Int
			reserve uint64
		}{{outA, reserveA}, {outB, reserveB}} {
			paid := new(big.Int).Mul(side.out.ToBig(), new(big.Int).SetUint64(supply))
			owed := new(big.Int).Mul(new(big.Int).SetUint64(units), new(big.Int).SetUint64(side.reserve))
			if paid.Cmp(owed) > 0 {
				t.Fatalf("paid %s for %d of %d units", side.out.Dec(), units, supply)
			}
		}
	})
}
