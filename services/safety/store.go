package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists the safety record. Load never fails: a missing or
// unreadable artifact degrades to the default state so the process can keep
// going with fresh counters. Save is a total overwrite and its failure is
// fatal for the attempt, silently losing counters would defeat the
// controller.
type Store interface {
	Load(ctx context.Context) State
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context) error
}

// FileStore keeps the state as a single JSON artifact on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) FileStore {
	return FileStore{path: path}
}

func (f FileStore) Path() string {
	return f.path
}

func (f FileStore) Load(ctx context.Context) State {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return DefaultState()
	}
	if err != nil {
		slog.WarnContext(ctx, "could not read safety state, starting fresh", "path", f.path, "err", err)
		return DefaultState()
	}

	state := DefaultState()
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.WarnContext(ctx, "could not parse safety state, starting fresh", "path", f.path, "err", err)
		return DefaultState()
	}
	if state.RemixHistory == nil {
		state.RemixHistory = map[string]string{}
	}
	return state
}

// Save writes the full record through a temp file and rename so a crash
// mid-write never leaves a partially written artifact behind.
func (f FileStore) Save(ctx context.Context, state State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal safety state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".safety_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write safety state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace safety state: %w", err)
	}
	return nil
}

func (f FileStore) Delete(ctx context.Context) error {
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
