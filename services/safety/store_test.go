package safety

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingArtifact(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "safety_state.json"))
	state := store.Load(context.Background())
	require.Equal(t, DefaultState(), state)
}

func TestFileStoreCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safety_state.json")
	err := os.WriteFile(path, []byte("{not json"), 0o644)
	require.NoError(t, err)

	state := NewFileStore(path).Load(context.Background())
	require.Equal(t, DefaultState(), state)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "safety_state.json"))

	state := DefaultState()
	state.RequestsToday = 7
	state.RemixesToday = 2
	state.LastResetDate = "2026-08-29"
	state.LastRequestTime = time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	state.ConsecutiveFailures = 1
	state.RemixHistory["P1"] = "N1"
	state.RequestLog = append(state.RequestLog, RequestLogEntry{
		Timestamp:    state.LastRequestTime,
		Operation:    OpRemix,
		Endpoint:     "/projects/P1/remix",
		Success:      true,
		ResponseCode: 201,
	})

	require.NoError(t, store.Save(ctx, state))

	loaded := store.Load(ctx)
	if diff := cmp.Diff(state, loaded); diff != "" {
		t.Fatalf("state mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "safety_state.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(ctx, DefaultState()))
	require.NoError(t, store.Delete(ctx))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// deleting an absent artifact is not an error
	require.NoError(t, store.Delete(ctx))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "safety_state.json"))

	require.NoError(t, store.Save(ctx, DefaultState()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
