package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	wrapped := fmt.Errorf("run: %w", &exitError{code: 3, err: errors.New("x")})
	assert.Equal(t, 3, exitCode(wrapped))
}

func TestRootCmd_WorkerIsHidden(t *testing.T) {
	root := newRootCmd()
	w, _, err := root.Find([]string{"worker"})
	require.NoError(t, err)
	assert.Equal(t, "worker", w.Name())
	assert.True(t, w.Hidden)
	assert.NotNil(t, w.Flags().Lookup("device"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("SDMINER_CONFIG", "")
	assert.Equal(t, "config.toml", defaultConfigPath())
	t.Setenv("SDMINER_CONFIG", "/etc/sdminer.yaml")
	assert.Equal(t, "/etc/sdminer.yaml", defaultConfigPath())
}

func TestSetup_BadConfigExitsOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("num_cuda_devices = 0\n"), 0o644))

	_, _, err := setup(filepath.Join(dir, "missing.env"), path, "supervisor")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestRoot_MissingMinerIDExitsOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := `base_url = "http://127.0.0.1:1/api"
signal_url = "http://127.0.0.1:1/signal"
num_cuda_devices = 1
version = "1.0.0"
models_dir = "` + dir + `"
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	t.Setenv("MINER_ID_0", "")

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "--env-file", filepath.Join(dir, "none.env")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINER_ID_0")
	assert.Equal(t, 1, exitCode(err))
}
