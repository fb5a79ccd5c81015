package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stableScope/internal/model"
	"stableScope/internal/storage/postgres"
)

// StateStore persists simulation progress between runs.
type StateStore interface {
	Load(ctx context.Context) (model.SimulationState, bool, error)
	Save(ctx context.Context, state model.SimulationState) error
}

// FileStateStore stores state in a local JSON file. An empty path disables
// it.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load(ctx context.Context) (model.SimulationState, bool, error) {
	if s == nil || s.Path == "" {
		return model.SimulationState{}, false, nil
	}

	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.SimulationState{}, false, nil
		}
		return model.SimulationState{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return model.SimulationState{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.SimulationState{}, false, fmt.Errorf("read state: %w", err)
	}
	var state model.SimulationState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.SimulationState{}, false, fmt.Errorf("parse state: %w", err)
	}
	return state, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, state model.SimulationState) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(state)
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

// DBStateStore stores state in the simulation_state table under Name.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (model.SimulationState, bool, error) {
	if s == nil || s.Store == nil {
		return model.SimulationState{}, false, nil
	}
	return s.Store.LoadSimulationState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, state model.SimulationState) error {
	if s == nil || s.Store == nil {
		return nil
	}
	state.Name = s.Name
	return s.Store.SaveSimulationState(ctx, state)
}
