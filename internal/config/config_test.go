package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.7, cfg.Serving.LocalConfidenceThreshold)
	assert.Equal(t, 0.7, cfg.Learning.HighValueThreshold)
	assert.Equal(t, 100, cfg.Learning.CheckpointInterval)
	assert.True(t, cfg.Learning.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
serving:
  top_k: 5
  local_confidence_threshold: 0.8
  augment_timeout: 500ms
learning:
  enabled: false
  checkpoint_interval: 25
  interval: 10m
breaker:
  failure_ratio: 0.25
  cooldown: 5s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Serving.TopK)
	assert.Equal(t, 0.8, cfg.Serving.LocalConfidenceThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Serving.AugmentTimeout)
	assert.False(t, cfg.Learning.Enabled)
	assert.Equal(t, 25, cfg.Learning.CheckpointInterval)
	assert.Equal(t, 10*time.Minute, cfg.Learning.Interval)
	assert.Equal(t, 0.25, cfg.Breaker.FailureRatio)
	assert.Equal(t, 5*time.Second, cfg.Breaker.Cooldown)

	// Untouched keys keep defaults.
	assert.Equal(t, 60*time.Second, cfg.Serving.BackendTimeout)
	assert.Equal(t, 10, cfg.Breaker.WindowSize)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfig(t, "serving: [not: a: map")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
learning:
  interval: every-hour
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning.interval")
}

func TestValidateFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{
			name:   "invalid log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "log_level",
		},
		{
			name:   "zero top_k",
			mutate: func(c *Config) { c.Serving.TopK = 0 },
			want:   "top_k",
		},
		{
			name:   "confidence threshold out of range",
			mutate: func(c *Config) { c.Serving.LocalConfidenceThreshold = 1.5 },
			want:   "local_confidence_threshold",
		},
		{
			name:   "zero failure ratio",
			mutate: func(c *Config) { c.Breaker.FailureRatio = 0 },
			want:   "failure_ratio",
		},
		{
			name:   "min samples above window",
			mutate: func(c *Config) { c.Breaker.MinSamples = 99 },
			want:   "min_samples",
		},
		{
			name:   "negative checkpoint interval",
			mutate: func(c *Config) { c.Learning.CheckpointInterval = -1 },
			want:   "checkpoint_interval",
		},
		{
			name:   "high value threshold out of range",
			mutate: func(c *Config) { c.Learning.HighValueThreshold = 2 },
			want:   "high_value_threshold",
		},
		{
			name: "learning enabled without telemetry dir",
			mutate: func(c *Config) {
				c.Learning.Enabled = true
				c.Learning.TelemetryDir = ""
			},
			want: "telemetry_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".relay"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".relay", "config.yaml"),
		[]byte("log_level: warn\n"), 0644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
