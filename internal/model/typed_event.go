package model

import (
	"encoding/json"
	"fmt"
)

// EventRef locates an event on chain and stamps it with its block time.
type EventRef struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Timestamp   uint64 `json:"timestamp"`
}

// TypedEvent is a decoded pool or factory event. Decoded holds one of the
// *Data payloads in events.go.
type TypedEvent struct {
	EventRef
	EventName string      `json:"event_name"`
	Decoded   interface{} `json:"decoded"`
	PoolMeta  PoolMeta    `json:"pool_meta"`
	Raw       *RawLogRef  `json:"raw,omitempty"`
}

// TypedEventRecord is a TypedEvent read back from JSONL with the payload
// left undecoded until the event name is known.
type TypedEventRecord struct {
	EventRef
	EventName string          `json:"event_name"`
	Decoded   json.RawMessage `json:"decoded"`
	PoolMeta  PoolMeta        `json:"pool_meta"`
	Raw       *RawLogRef      `json:"raw,omitempty"`
}

// DecodePayload unmarshals the payload into v.
func (r TypedEventRecord) DecodePayload(v interface{}) error {
	if len(r.Decoded) == 0 {
		return fmt.Errorf("%s: empty payload", r.EventName)
	}
	if err := json.Unmarshal(r.Decoded, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return nil
}

// RawLogRef keeps the undecoded log body for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
