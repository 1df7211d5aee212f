package indexer

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestToLogRecord(t *testing.T) {
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	log := types.Log{
		Address:     pool,
		Topics:      []common.Hash{topicHash(t, "TokenSwapped"), common.BytesToHash(pool.Bytes())},
		Data:        []byte{0xde, 0xad},
		BlockNumber: 7,
		TxHash:      common.HexToHash("0x07"),
		TxIndex:     2,
		Index:       5,
	}
	ingested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	rec := toLogRecord(31337, log, 1700000021, ingested)
	require.Equal(t, uint64(31337), rec.ChainID)
	require.Equal(t, pool.Hex(), rec.Address)
	require.Equal(t, "0xdead", rec.Data)
	require.Equal(t, topicHash(t, "TokenSwapped").Hex(), rec.Topic0())
	require.Len(t, rec.Topics, 2)
	require.Equal(t, uint64(2), rec.TxIndex)
	require.Equal(t, uint64(5), rec.LogIndex)
	require.Equal(t, uint64(1700000021), rec.Timestamp)
	require.Equal(t, "2024-01-02T02:04:05Z", rec.IngestedAt)
}

func TestLogKey(t *testing.T) {
	log := types.Log{BlockNumber: 9, TxHash: common.HexToHash("0xAB"), Index: 3}
	require.Equal(t, logKey(log), logKey(log))

	removed := log
	removed.Removed = true
	require.NotEqual(t, logKey(log), logKey(removed))

	other := log
	other.Index = 4
	require.NotEqual(t, logKey(log), logKey(other))
}
