package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberweb/constellate/internal/ident"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := GenerateDefault()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.CheckpointInterval())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellate.yaml")
	cfg := GenerateDefault()
	cfg.CheckpointIntervalMs = 250
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.CheckpointIntervalMs, loaded.CheckpointIntervalMs)
	assert.Equal(t, cfg.HangTimers, loaded.HangTimers)
}

func TestLoadRejectsBadTimers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellate.yaml")
	body := `
version: "1"
hang_timers:
  script:
    task_timeout_ms: 100
    max_timeout_ms: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_timeout_ms")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hang_timers: ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTimersFallBackToScript(t *testing.T) {
	cfg := GenerateDefault()
	delete(cfg.HangTimers, string(ident.ComponentKindLayout))

	timers := cfg.Timers(ident.ComponentKindLayout)
	assert.Equal(t, cfg.Timers(ident.ComponentKindScript), timers)
}

func TestTimersFallBackToDefaultBudgets(t *testing.T) {
	cfg := GenerateDefault()
	cfg.HangTimers = nil

	// A config with no budgets at all must not hand out the zero value,
	// which would classify every checkpoint as a permanent hang.
	timers := cfg.Timers(ident.ComponentKindLayout)
	assert.Equal(t, GenerateDefault().Timers(ident.ComponentKindLayout), timers)
	assert.Positive(t, timers.TaskTimeout)
	assert.Positive(t, timers.MaxTimeout)
}

func TestTimersConvertToDurations(t *testing.T) {
	cfg := GenerateDefault()
	timers := cfg.Timers(ident.ComponentKindScript)
	assert.Equal(t, 100*time.Millisecond, timers.TaskTimeout)
	assert.Equal(t, 5*time.Second, timers.MaxTimeout)
}
