package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Email    string `json:"email"`
	Headless bool   `json:"headless"`
	StateDir string `json:"state_dir"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "config.json5")
	err := os.WriteFile(base, []byte(`{
		// base config
		email: "a@example.com",
		state_dir: "state",
	}`), 0o644)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		headless: true,
		email: "b@example.com",
	}`), 0o644)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](base)
	require.NoError(t, err)
	require.Equal(t, "b@example.com", cfg.Email)
	require.True(t, cfg.Headless)
	require.Equal(t, "state", cfg.StateDir)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
