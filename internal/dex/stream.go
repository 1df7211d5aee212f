package dex

import (
	"encoding/json"
	"fmt"
	"io"

	"liquidityPool/internal/model"
	"liquidityPool/internal/storage"
)

// RecordWriter receives one decoded value at a time.
type RecordWriter interface {
	Write(value interface{}) error
}

// DecodeStats summarizes a DecodeStream pass.
type DecodeStats struct {
	Total   int
	Decoded int
	Skipped int
	Failed  int
}

// DecodeStream decodes a JSONL stream of LogRecords. Typed events go to out;
// per-line failures go to errs and do not stop the stream. Logs with an
// unknown topic0 are skipped.
func DecodeStream(in io.Reader, decoder Decoder, ctx DecodeContext, out RecordWriter, errs RecordWriter) (DecodeStats, error) {
	var stats DecodeStats
	writeErr := func(rec model.DecodeError) {
		stats.Failed++
		if errs != nil {
			_ = errs.Write(rec)
		}
	}

	err := storage.ScanJSONL(in, func(line []byte) error {
		stats.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			writeErr(model.DecodeError{Error: err.Error()})
			return nil
		}
		if record.Topic0() == "" {
			writeErr(model.DecodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
			return nil
		}
		if record.Removed {
			stats.Skipped++
			return nil
		}
		if !decoder.CanDecode(record.Topic0()) {
			stats.Skipped++
			return nil
		}

		event, err := decoder.Decode(record, ctx)
		if err != nil {
			writeErr(model.DecodeErrorFromRecord(record, err))
			return nil
		}
		if err := out.Write(event); err != nil {
			return err
		}
		stats.Decoded++
		return nil
	})
	return stats, err
}
