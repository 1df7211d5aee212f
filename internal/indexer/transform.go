package indexer

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityPool/internal/model"
)

// logKey identifies a log within one chain. Overlapping batches and reorg
// replays yield the same key.
func logKey(log types.Log) string {
	var b strings.Builder
	b.Grow(100)
	b.WriteString(strconv.FormatUint(log.BlockNumber, 10))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(log.TxHash.Hex()))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(log.Index), 10))
	if log.Removed {
		b.WriteString(":removed")
	}
	return b.String()
}

// toLogRecord normalizes a chain log into the stored form: hashes and
// addresses as checksummed or 0x hex, data as 0x hex, times in UTC.
func toLogRecord(chainID uint64, log types.Log, blockTime uint64, ingestedAt time.Time) model.LogRecord {
	rec := model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      make([]string, len(log.Topics)),
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   blockTime,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, topic := range log.Topics {
		rec.Topics[i] = topic.Hex()
	}
	return rec
}
