package aggregate

import (
	"context"
	"fmt"
)

// StateBackend is a keyed cursor table. *postgres.Store satisfies it.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore stores one named cursor in the indexer_state table.
type DBStateStore struct {
	Backend StateBackend
	Name    string
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Backend == nil {
		return 0, false, nil
	}
	return s.Backend.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.SaveState(ctx, s.Name, ts)
}

// StateName derives the cursor name for a chain and window size.
func StateName(chainID uint64, windowSeconds uint64) string {
	return fmt.Sprintf("aggregate_%d_%d", chainID, windowSeconds)
}
