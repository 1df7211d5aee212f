package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"liquidityPool/internal/storage"
)

// Checkpoint is the resumable indexer state: the last fully stored block and
// the pools followed from PoolCreated logs so far.
type Checkpoint struct {
	ChainID            uint64   `json:"chain_id,omitempty"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
	Pools              []string `json:"pools,omitempty"`
	UpdatedAt          string   `json:"updated_at"`
}

// CheckpointStore keeps a Checkpoint in a JSON file. A nil store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path string
	now  func() time.Time
}

// NewCheckpointStore returns nil when checkpointing is disabled or no path
// is set.
func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	if !enabled || path == "" {
		return nil
	}
	return &CheckpointStore{path: path, now: time.Now}
}

// Load reads the checkpoint. ok is false when none has been written yet.
func (c *CheckpointStore) Load() (cp Checkpoint, ok bool, err error) {
	if c == nil {
		return Checkpoint{}, false, nil
	}
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Checkpoint{}, false, nil
	case err != nil:
		return Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", c.path, err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	return cp, true, nil
}

// Save replaces the checkpoint file atomically. UpdatedAt is stamped here.
func (c *CheckpointStore) Save(cp Checkpoint) error {
	if c == nil {
		return nil
	}
	cp.UpdatedAt = c.now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := storage.WriteFileAtomic(c.path, data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
