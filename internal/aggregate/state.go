package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"liquidityPool/internal/storage"
)

// StateStore persists the aggregation cursor: the timestamp of the last
// event folded into stored metrics.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore keeps named cursors in one JSON file. A nil store or an
// empty Path loads nothing and saves nothing.
type FileStateStore struct {
	Path string
	Name string
	// Now stamps saved cursors. Defaults to time.Now.
	Now func() time.Time
}

type cursor struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

type cursorFile struct {
	Cursors map[string]cursor `json:"cursors"`
}

func (s *FileStateStore) Load(context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	file, err := s.read()
	if err != nil {
		return 0, false, err
	}
	c, ok := file.Cursors[s.Name]
	return c.LastProcessed, ok, nil
}

// Save rewrites the file, keeping the other cursors.
func (s *FileStateStore) Save(_ context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	file, err := s.read()
	if err != nil {
		return err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	file.Cursors[s.Name] = cursor{LastProcessed: ts, UpdatedAt: now().UTC().Format(time.RFC3339Nano)}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := storage.WriteFileAtomic(s.Path, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *FileStateStore) read() (cursorFile, error) {
	file := cursorFile{Cursors: make(map[string]cursor)}
	data, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return file, nil
	case err != nil:
		return file, fmt.Errorf("read state %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse state %s: %w", s.Path, err)
	}
	if file.Cursors == nil {
		file.Cursors = make(map[string]cursor)
	}
	return file, nil
}
