package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityPool/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	sink := NewJsonlStorage(path)

	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 1, LogIndex: 0}}))
	require.NoError(t, sink.PutLogBatch(nil))
	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 2, LogIndex: 1}}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var blocks []uint64
	err = ScanJSONL(file, func(line []byte) error {
		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		blocks = append(blocks, record.BlockNumber)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, blocks)
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	w, err := NewJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"a": 1}))
	require.NoError(t, w.Write(map[string]string{"b": "<x>"}))
	require.Equal(t, 2, w.Lines())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n{\"b\":\"<x>\"}\n", string(data))
}

func TestScanJSONLSkipsBlankLines(t *testing.T) {
	var lines []string
	err := ScanJSONL(strings.NewReader("one\n\n   \ntwo\n"), func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, lines)
}

func TestScanJSONLReportsLine(t *testing.T) {
	stop := errors.New("stop")
	err := ScanJSONL(strings.NewReader("a\n\nb\n"), func(line []byte) error {
		if string(line) == "b" {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.ErrorContains(t, err, "line 3")
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "cursor.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMemoryStorageCopies(t *testing.T) {
	sink := NewMemoryStorage()
	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 7}}))

	logs := sink.Logs()
	logs[0].BlockNumber = 99
	require.Equal(t, uint64(7), sink.Logs()[0].BlockNumber)
}
