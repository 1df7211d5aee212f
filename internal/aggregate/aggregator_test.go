package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityPool/internal/model"
)

const (
	poolAddr    = "0x1111111111111111111111111111111111111111"
	factoryAddr = "0xF000000000000000000000000000000000000001"
	tokenA      = "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"
	tokenB      = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
)

type memoryStore struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
	state   map[string]uint64
}

func (m *memoryStore) UpsertPools(_ context.Context, pools []model.Pool) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memoryStore) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	m.metrics = append(m.metrics, metrics...)
	return nil
}

func (m *memoryStore) LoadState(_ context.Context, name string) (uint64, bool, error) {
	ts, ok := m.state[name]
	return ts, ok, nil
}

func (m *memoryStore) SaveState(_ context.Context, name string, ts uint64) error {
	if m.state == nil {
		m.state = make(map[string]uint64)
	}
	m.state[name] = ts
	return nil
}

func meta(reserveA, reserveB string) model.PoolMeta {
	return model.PoolMeta{
		TokenA:         tokenA,
		TokenB:         tokenB,
		OwnershipToken: "0xcccccccccccccccccccccccccccccccccccccccc",
		FeeBps:         30,
		ReserveA:       reserveA,
		ReserveB:       reserveB,
	}
}

func writeEvents(t *testing.T, events ...model.TypedEvent) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		line, err := json.Marshal(ev)
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return &buf
}

func scenario() []model.TypedEvent {
	return []model.TypedEvent{
		{
			EventRef: model.EventRef{ChainID: 31337, BlockNumber: 1, Address: factoryAddr, Timestamp: 1000}, EventName: "PoolCreated",
			Decoded: model.PoolCreatedData{Pool: poolAddr, TokenA: tokenA, TokenB: tokenB, OwnershipToken: "0xcccccccccccccccccccccccccccccccccccccccc", FeeBps: 30},
		},
		{
			EventRef: model.EventRef{ChainID: 31337, BlockNumber: 2, Address: poolAddr, Timestamp: 1010}, EventName: "LiquidityAdded",
			Decoded:  model.LiquidityAddedData{AmountA: "1000", AmountB: "1000", UnitsMinted: "1000", ReserveA: "1000", ReserveB: "1000"},
			PoolMeta: meta("1000", "1000"),
		},
		{
			EventRef: model.EventRef{ChainID: 31337, BlockNumber: 3, Address: poolAddr, Timestamp: 1020}, EventName: "TokenSwapped",
			Decoded:  model.TokenSwappedData{TokenIn: tokenA, TokenOut: tokenB, AmountIn: "100", AmountOut: "90", ReserveIn: "1100", ReserveOut: "910"},
			PoolMeta: meta("1100", "910"),
		},
		{
			EventRef: model.EventRef{ChainID: 31337, BlockNumber: 4, Address: poolAddr, Timestamp: 1030}, EventName: "TokenSwapped",
			Decoded:  model.TokenSwappedData{TokenIn: tokenB, TokenOut: tokenA, AmountIn: "1000", AmountOut: "523", ReserveIn: "1910", ReserveOut: "577"},
			PoolMeta: meta("577", "1910"),
		},
		{
			EventRef: model.EventRef{ChainID: 31337, BlockNumber: 9, Address: poolAddr, Timestamp: 1400}, EventName: "LiquidityRemoved",
			Decoded:  model.LiquidityRemovedData{AmountA: "57", AmountB: "191", UnitsBurned: "100", ReserveA: "520", ReserveB: "1719"},
			PoolMeta: meta("520", "1719"),
		},
	}
}

func TestAggregatorWindows(t *testing.T) {
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 300}, store, nil, nil)

	require.NoError(t, agg.RunReader(context.Background(), writeEvents(t, scenario()...)))

	require.Len(t, store.pools, 1)
	require.Equal(t, poolAddr, store.pools[0].Address)
	require.Equal(t, uint64(1), store.pools[0].FirstSeenBlock)
	require.Equal(t, uint16(30), store.pools[0].FeeBps)

	require.Len(t, store.metrics, 2)
	first := store.metrics[0]
	require.Equal(t, int64(900), first.WindowStart.Unix())
	require.Equal(t, uint64(2), first.SwapCount)
	require.Equal(t, uint64(1), first.DepositCount)
	require.Equal(t, "623", first.VolumeA)
	require.Equal(t, "1090", first.VolumeB)
	// 100 keeps 99 after a 30 bps fee; 1000 keeps 997.
	require.Equal(t, "1", first.FeeA)
	require.Equal(t, "3", first.FeeB)
	require.Equal(t, "event_reserves", first.TVLMethod)
	require.Equal(t, "fee_bps", first.FeeMethod)
	require.NotNil(t, first.ReserveA)
	require.Equal(t, "577", *first.ReserveA)
	require.Equal(t, "1910", *first.ReserveB)
	require.NotNil(t, first.FeeRateA)
	require.NotNil(t, first.FeeRateB)
	require.NotNil(t, first.APR)

	second := store.metrics[1]
	require.Equal(t, int64(1200), second.WindowStart.Unix())
	require.Equal(t, uint64(1), second.WithdrawCount)
	require.Equal(t, uint64(0), second.SwapCount)
	require.Nil(t, second.APR)
}

func TestAggregatorResumesFromState(t *testing.T) {
	store := &memoryStore{}
	stateStore := &DBStateStore{Backend: store, Name: StateName(31337, 300)}
	require.NoError(t, stateStore.Save(context.Background(), 1199))

	agg := NewAggregator(Config{WindowSeconds: 300, StateStore: stateStore}, store, nil, nil)
	require.NoError(t, agg.RunReader(context.Background(), writeEvents(t, scenario()...)))

	require.Len(t, store.metrics, 1)
	require.Equal(t, uint64(1), store.metrics[0].WithdrawCount)
	require.Equal(t, uint64(1400), store.state["aggregate_31337_300"])
}

func TestAggregatorDecimals(t *testing.T) {
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 300}, store, nil, nil)
	agg.SetTokenDecimals(common.HexToAddress(tokenA), 2)

	require.NoError(t, agg.RunReader(context.Background(), writeEvents(t, scenario()[:3]...)))
	require.Len(t, store.metrics, 1)
	require.Equal(t, "1.00", store.metrics[0].VolumeA)
	require.Equal(t, "90", store.metrics[0].VolumeB)
}

func TestAggregatorRejectsForeignSwapToken(t *testing.T) {
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 300}, store, nil, nil)

	bad := model.TypedEvent{
		EventRef: model.EventRef{ChainID: 31337, BlockNumber: 3, Address: poolAddr, Timestamp: 1020}, EventName: "TokenSwapped",
		Decoded:  model.TokenSwappedData{TokenIn: "0x9999999999999999999999999999999999999999", AmountIn: "1", AmountOut: "1"},
		PoolMeta: meta("", ""),
	}
	require.NoError(t, agg.RunReader(context.Background(), writeEvents(t, bad)))
	require.Len(t, store.metrics, 1)
	require.Equal(t, uint64(0), store.metrics[0].SwapCount)
	require.Equal(t, "unavailable", store.metrics[0].TVLMethod)
}

func TestFileStateStoreNamedCursors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "aggregate.json")
	five := &FileStateStore{Path: path, Name: "five"}
	hour := &FileStateStore{Path: path, Name: "hour"}

	ctx := context.Background()
	require.NoError(t, five.Save(ctx, 10))
	require.NoError(t, hour.Save(ctx, 20))

	ts, ok, err := five.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), ts)

	ts, ok, err = hour.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20), ts)

	_, ok, err = (&FileStateStore{Path: path, Name: "missing"}).Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStateStoreStampsAndRejectsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggregate.json")
	ctx := context.Background()
	stamp := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &FileStateStore{Path: path, Name: StateName(1, 60), Now: func() time.Time { return stamp }}
	require.NoError(t, store.Save(ctx, 99))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"updated_at": "2024-03-01T00:00:00Z"`)
	require.Contains(t, string(data), `"aggregate_1_60"`)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, _, err = store.Load(ctx)
	require.ErrorContains(t, err, "parse state")
	require.Error(t, store.Save(ctx, 100), "a corrupt file is not overwritten")
}
