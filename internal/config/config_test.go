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

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sentinel.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Observer.SpikeThreshold)
	assert.Equal(t, 10, cfg.Observer.VolumeThreshold)
	assert.InDelta(t, 0.70, cfg.Decider.ConfidenceHigh, 1e-9)
	assert.InDelta(t, 0.50, cfg.Decider.ConfidenceMedium, 1e-9)
	assert.Equal(t, 3, cfg.Decider.SignificantSubjects)
	assert.False(t, cfg.Oracle.Enabled)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  address: ":9090"
observer:
  spikeThreshold: 5
oracle:
  enabled: true
  model: test-model
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Observer.SpikeThreshold)
	assert.True(t, cfg.Oracle.Enabled)
	assert.Equal(t, "test-model", cfg.Oracle.Model)
	// Unset fields keep their defaults.
	assert.Equal(t, "sentinel.db", cfg.Store.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_SERVER_ADDRESS", ":7070")
	t.Setenv("SENTINEL_SPIKE_THRESHOLD", "4")
	t.Setenv("SENTINEL_LOG_FORMAT", "json")
	t.Setenv("SENTINEL_SCHEDULER_INTERVAL", "30s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 4, cfg.Observer.SpikeThreshold)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observer:\n  spikeThreshold: 1\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	path2 := filepath.Join(t.TempDir(), "bad2.yaml")
	require.NoError(t, os.WriteFile(path2, []byte("decider:\n  confidenceMedium: 0.9\n"), 0o644))
	_, err = Load(path2)
	assert.Error(t, err)
}
