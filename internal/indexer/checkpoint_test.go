package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckpointStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	store := NewCheckpointStore(path, true)
	store.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save(Checkpoint{
		ChainID:            31337,
		LastProcessedBlock: 42,
		Pools:              []string{"0x1111111111111111111111111111111111111111"},
	}))

	cp, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), cp.LastProcessedBlock)
	require.Equal(t, []string{"0x1111111111111111111111111111111111111111"}, cp.Pools)
	require.Equal(t, "2024-05-01T12:00:00Z", cp.UpdatedAt)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file left behind")
}

func TestCheckpointStoreDisabled(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "cp.json"), false)
	require.Nil(t, store)
	require.NoError(t, store.Save(Checkpoint{LastProcessedBlock: 1}))
	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckpointStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, _, err := NewCheckpointStore(path, true).Load()
	require.ErrorContains(t, err, "parse checkpoint")
}
