package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, ".anvil/state", cfg.StateDir)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 50, cfg.Loop.MaxIterations)
	assert.Equal(t, 3, cfg.Loop.MaxGateFailures)
	assert.True(t, cfg.Loop.RequireSummaryEvidence)
	assert.Equal(t, 2*time.Minute, cfg.CommandTimeout())
	assert.Equal(t, "anvil", cfg.Git.AuthorName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: anthropic
  name: claude-sonnet
loop:
  max_iterations: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet", cfg.Model.Name)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	// Untouched keys keep their defaults.
	assert.Equal(t, 24, cfg.Loop.MaxToolCallsPerIteration)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	require.NoError(t, os.WriteFile(path, []byte("work_dir: /from/file\n"), 0o644))

	t.Setenv("ANVIL_WORK_DIR", "/from/env")
	t.Setenv("ANVIL_MODEL__API_KEY", "sk-test")
	t.Setenv("ANVIL_LOOP__MAX_ITERATIONS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.WorkDir)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, 7, cfg.Loop.MaxIterations)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoopConfigMapping(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	lc := cfg.LoopConfig()
	assert.Equal(t, cfg.Loop.MaxIterations, lc.MaxIterations)
	assert.Equal(t, cfg.StateDir, lc.StateDir)
	assert.Equal(t, cfg.Model.Name, lc.Model)
	assert.True(t, lc.DetectGaps)
}
