package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityPool/internal/config"
	"liquidityPool/internal/model"
	"liquidityPool/internal/simulate"
	"liquidityPool/internal/storage"
)

type fakeEventStore struct {
	pools  []model.Pool
	events []model.TypedEvent
}

func (f *fakeEventStore) UpsertPools(_ context.Context, pools []model.Pool) error {
	f.pools = append(f.pools, pools...)
	return nil
}

func (f *fakeEventStore) InsertEvents(_ context.Context, events []model.TypedEvent) error {
	f.events = append(f.events, events...)
	return nil
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.ElementsMatch(t, []string{"simulate", "index", "decode", "aggregate"}, names)
}

func TestEventSinkBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	writer, err := storage.NewJSONLWriter(path, false)
	require.NoError(t, err)

	store := &fakeEventStore{}
	sink := &eventSink{ctx: context.Background(), next: writer, store: store}

	require.NoError(t, sink.Write(&model.TypedEvent{
		EventRef:  model.EventRef{ChainID: 1, BlockNumber: 7},
		EventName: "PoolCreated",
		Decoded: model.PoolCreatedData{
			Pool:   "0x01",
			TokenA: "0x0a",
			TokenB: "0x0b",
			FeeBps: 30,
		},
	}))
	require.NoError(t, sink.Write(&model.TypedEvent{EventRef: model.EventRef{ChainID: 1, BlockNumber: 8}, EventName: "TokenSwapped"}))
	require.Empty(t, store.events, "events are batched until flush")

	require.NoError(t, sink.flush())
	require.NoError(t, writer.Close())

	require.Len(t, store.events, 2)
	require.Len(t, store.pools, 1)
	require.Equal(t, uint64(7), store.pools[0].FirstSeenBlock)
	require.Equal(t, uint16(30), store.pools[0].FeeBps)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "TokenSwapped")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeReport(path, &simulate.Report{ChainID: 31337, Logs: 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"chain_id": 31337`)
	require.Contains(t, string(data), `"logs": 3`)
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"": "",
		"https://mainnet.infura.io/v3/secret-key":               "https://mainnet.infura.io",
		"postgres://pool:hunter2@db:5432/pools?sslmode=disable": "postgres://db:5432",
		"host=db user=pool password=hunter2":                    "***",
	}
	for in, want := range cases {
		require.Equal(t, want, redactURL(in), in)
	}
}

func TestIndexRunConfig(t *testing.T) {
	cfg := config.Config{
		RPCURL:    "http://localhost:8545",
		Addresses: []string{"0xf000000000000000000000000000000000000001"},
		Topic0:    []string{"TokenSwapped"},
		BatchSize: 100,
	}
	runCfg, err := indexRunConfig(cfg)
	require.NoError(t, err)
	require.Len(t, runCfg.Addresses, 1)
	require.Len(t, runCfg.Topic0, 1)
	require.Equal(t, uint64(100), runCfg.BatchSize)

	noRPC := cfg
	noRPC.RPCURL = ""
	_, err = indexRunConfig(noRPC)
	require.ErrorContains(t, err, "rpc url")

	noAddr := cfg
	noAddr.Addresses = nil
	_, err = indexRunConfig(noAddr)
	require.ErrorContains(t, err, "address is required")

	badTopic := cfg
	badTopic.Topic0 = []string{"Transfer"}
	_, err = indexRunConfig(badTopic)
	require.ErrorContains(t, err, "topic0 filter")
}
