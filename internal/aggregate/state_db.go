package aggregate

import (
	"context"
	"fmt"

	"ammcore/internal/storage/postgres"
)

// DBStateStore keeps progress in the aggregate_state table, one row per
// window size.
type DBStateStore struct {
	Store         *postgres.Store
	WindowSeconds int64
}

func (s *DBStateStore) name() string {
	return fmt.Sprintf("aggregator:%d", s.WindowSeconds)
}

func (s *DBStateStore) Load(ctx context.Context) (int64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.name())
}

func (s *DBStateStore) Save(ctx context.Context, ts int64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.name(), ts)
}
