package chain

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

// fakeEth serves the eth_ methods the client uses.
type fakeEth struct {
	mu         sync.Mutex
	head       uint64
	blockCalls int
	chainCalls int
}

func (f *fakeEth) ChainId() *hexutil.Big {
	f.mu.Lock()
	f.chainCalls++
	f.mu.Unlock()
	return (*hexutil.Big)(big.NewInt(31337))
}

func (f *fakeEth) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(f.head)
}

func (f *fakeEth) GetBlockByNumber(number hexutil.Uint64, _ bool) (map[string]interface{}, error) {
	f.mu.Lock()
	f.blockCalls++
	f.mu.Unlock()
	if uint64(number) > f.head {
		return nil, nil
	}
	return map[string]interface{}{
		"number":    number,
		"timestamp": hexutil.Uint64(1700000000 + 12*uint64(number)),
	}, nil
}

func newTestClient(t *testing.T, eth *fakeEth, opts ...Option) *Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", eth))
	t.Cleanup(server.Stop)

	c, err := NewClientFromRPC(rpc.DialInProc(server), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestChainIDIsCached(t *testing.T) {
	eth := &fakeEth{}
	c := newTestClient(t, eth)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := c.GetChainID(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(31337), id.Int64())
		id.SetInt64(1) // callers get a copy
	}
	require.Equal(t, 1, eth.chainCalls)
}

func TestLatestBlockNumber(t *testing.T) {
	c := newTestClient(t, &fakeEth{head: 77})
	n, err := c.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(77), n)
}

func TestBlockTimestampsBatchesAndCaches(t *testing.T) {
	eth := &fakeEth{head: 500}
	c := newTestClient(t, eth)
	ctx := context.Background()

	got, err := c.BlockTimestamps(ctx, []uint64{1, 2, 2, 3})
	require.NoError(t, err)
	require.Equal(t, map[uint64]uint64{1: 1700000012, 2: 1700000024, 3: 1700000036}, got)
	require.Equal(t, 3, eth.blockCalls)

	got, err = c.BlockTimestamps(ctx, []uint64{2, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 3, eth.blockCalls, "cached blocks are not refetched")

	many := make([]uint64, 250)
	for i := range many {
		many[i] = uint64(100 + i)
	}
	got, err = c.BlockTimestamps(ctx, many)
	require.NoError(t, err)
	require.Len(t, got, 250)
	require.Equal(t, uint64(1700000000+12*349), got[349])
}

func TestBlockTimestampsEvicts(t *testing.T) {
	eth := &fakeEth{head: 10}
	c := newTestClient(t, eth, WithTimestampCacheSize(2))
	ctx := context.Background()

	_, err := c.BlockTimestamps(ctx, []uint64{1, 2, 3})
	require.NoError(t, err)
	_, err = c.BlockTimestamps(ctx, []uint64{1})
	require.NoError(t, err)
	require.Equal(t, 4, eth.blockCalls)
}

func TestBlockTimestampsMissingBlock(t *testing.T) {
	c := newTestClient(t, &fakeEth{head: 5})
	_, err := c.BlockTimestamps(context.Background(), []uint64{4, 9})
	require.ErrorIs(t, err, ethereum.NotFound)
	require.ErrorContains(t, err, "block 9")
}

func TestInvalidCacheSize(t *testing.T) {
	server := rpc.NewServer()
	defer server.Stop()
	rc := rpc.DialInProc(server)
	defer rc.Close()
	_, err := NewClientFromRPC(rc, WithTimestampCacheSize(0))
	require.Error(t, err)
}
