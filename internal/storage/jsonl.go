package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"liquidityPool/internal/model"
)

// maxLineSize bounds one JSONL line when scanning.
const maxLineSize = 10 << 20

// JsonlStorage appends log records to a JSONL file. Each batch is synced to
// disk before PutLogBatch returns, so a checkpoint written afterwards never
// points past stored logs.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := NewJSONLWriter(s.path, true)
	if err != nil {
		return err
	}
	for i := range logs {
		if err := w.Write(&logs[i]); err != nil {
			return errors.Join(err, w.Close())
		}
	}
	if err := w.Sync(); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}

// JSONLWriter encodes one JSON document per line through a buffer.
type JSONLWriter struct {
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	lines int
}

// NewJSONLWriter opens path, creating parent directories. With appendMode
// existing lines are kept; otherwise the file is truncated.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}
	mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{file: file, buf: buf, enc: enc}, nil
}

// Write encodes value as the next line.
func (w *JSONLWriter) Write(value interface{}) error {
	if err := w.enc.Encode(value); err != nil {
		return fmt.Errorf("encode line %d: %w", w.lines+1, err)
	}
	w.lines++
	return nil
}

// Lines reports how many lines this writer has written.
func (w *JSONLWriter) Lines() int {
	return w.lines
}

// Sync flushes buffered lines and commits them to stable storage.
func (w *JSONLWriter) Sync() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.file.Name(), err)
	}
	return w.file.Sync()
}

// Close flushes buffered lines and closes the file. It is safe on nil.
func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	return errors.Join(flushErr, w.file.Close())
}

// ScanJSONL calls fn with every non-blank line of r, trimmed. The slice is
// only valid during the call. Errors from fn stop the scan and carry the
// line number.
func ScanJSONL(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
