package model

import (
	"encoding/json"
	"testing"
)

func TestTokenSwappedDataJSONStringFields(t *testing.T) {
	payload := TokenSwappedData{
		Pool:       "0x1111111111111111111111111111111111111111",
		TokenIn:    "0x2222222222222222222222222222222222222222",
		TokenOut:   "0x3333333333333333333333333333333333333333",
		AmountIn:   "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		AmountOut:  "90",
		ReserveIn:  "1100",
		ReserveOut: "910",
		Timestamp:  1700000000,
		Caller:     "0x4444444444444444444444444444444444444444",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"amount_in", "amount_out", "reserve_in", "reserve_out"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}

func TestTypedEventRecordDecodePayload(t *testing.T) {
	record := TypedEventRecord{
		EventName: "LiquidityAdded",
		Decoded:   json.RawMessage(`{"amount_a":"1000","amount_b":"4000","units_minted":"2000"}`),
	}

	var added LiquidityAddedData
	if err := record.DecodePayload(&added); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if added.UnitsMinted != "2000" || added.AmountB != "4000" {
		t.Fatalf("payload mismatch: %+v", added)
	}

	if err := (TypedEventRecord{EventName: "Swap"}).DecodePayload(&added); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
