package model

import (
	"errors"
	"testing"
)

func TestLogRecordTopic0(t *testing.T) {
	record := LogRecord{Topics: []string{"0xaaa", "0xbbb"}}
	if got := record.Topic0(); got != "0xaaa" {
		t.Fatalf("topic0 mismatch: %s", got)
	}

	if got := (LogRecord{}).Topic0(); got != "" {
		t.Fatalf("expected empty topic0, got %s", got)
	}
}

func TestDecodeErrorFromRecord(t *testing.T) {
	record := LogRecord{
		ChainID:     31337,
		BlockNumber: 42,
		TxHash:      "0xdef456",
		LogIndex:    3,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa"},
	}

	got := DecodeErrorFromRecord(record, errors.New("boom"))
	want := DecodeError{
		ChainID:     31337,
		BlockNumber: 42,
		TxHash:      "0xdef456",
		LogIndex:    3,
		Address:     "0x1111111111111111111111111111111111111111",
		Topic0:      "0xaaa",
		Error:       "boom",
	}
	if got != want {
		t.Fatalf("decode error mismatch: %+v != %+v", got, want)
	}
}
