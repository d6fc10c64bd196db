package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateStore persists the last journal timestamp fully aggregated.
type StateStore interface {
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, ts int64) error
}

// FileStateStore keeps progress in a JSON file. The file also records the
// window size it was written for; progress saved under another window size is
// ignored so changing the window recomputes from the start.
type FileStateStore struct {
	Path          string
	WindowSeconds int64
}

type fileState struct {
	LastProcessed int64     `json:"last_processed_ts"`
	WindowSeconds int64     `json:"window_seconds"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *FileStateStore) Load(context.Context) (int64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read state: %w", err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, false, fmt.Errorf("parse state %s: %w", s.Path, err)
	}
	if st.WindowSeconds != s.WindowSeconds {
		return 0, false, nil
	}
	return st.LastProcessed, true, nil
}

func (s *FileStateStore) Save(_ context.Context, ts int64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.Marshal(fileState{LastProcessed: ts, WindowSeconds: s.WindowSeconds, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
