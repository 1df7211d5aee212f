package indexer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name            string
		from, to, batch uint64
		want            []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"short tail", 1, 5, 2, []BlockRange{{1, 2}, {3, 4}, {5, 5}}},
		{"single block", 5, 5, 10, []BlockRange{{5, 5}}},
		{"batch wider than range", 0, 3, 100, []BlockRange{{0, 3}}},
		{"top of uint64", math.MaxUint64 - 2, math.MaxUint64, 2, []BlockRange{
			{math.MaxUint64 - 2, math.MaxUint64 - 1},
			{math.MaxUint64, math.MaxUint64},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRange(tc.from, tc.to, tc.batch)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			var total uint64
			for _, r := range got {
				require.LessOrEqual(t, r.Len(), tc.batch)
				total += r.Len()
			}
			require.Equal(t, tc.to-tc.from+1, total)
		})
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	require.ErrorContains(t, err, "before from block")

	_, err = SplitRange(1, 10, 0)
	require.ErrorContains(t, err, "batch size")
}

func TestTrimThrough(t *testing.T) {
	span := BlockRange{From: 10, To: 20}

	got, ok := span.trimThrough(4)
	require.True(t, ok)
	require.Equal(t, span, got)

	got, ok = span.trimThrough(14)
	require.True(t, ok)
	require.Equal(t, BlockRange{From: 15, To: 20}, got)

	_, ok = span.trimThrough(20)
	require.False(t, ok)

	_, ok = BlockRange{From: 0, To: math.MaxUint64}.trimThrough(math.MaxUint64)
	require.False(t, ok)
}
