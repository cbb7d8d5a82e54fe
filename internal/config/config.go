// Package config loads and validates relay configuration.
//
// Configuration is YAML-based with defaults-first merging: missing files and
// missing keys fall back to defaults, but invalid values fail fast at startup
// rather than letting the pipeline run with undefined behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServingConfig controls the request-serving path: augmentation and routing.
type ServingConfig struct {
	// TopK is the number of context items retrieved per query
	TopK int `yaml:"top_k"`

	// LocalConfidenceThreshold is the minimum self-reported confidence from
	// the local backend before escalating to a remote backend
	LocalConfidenceThreshold float64 `yaml:"local_confidence_threshold"`

	// AugmentTimeout bounds each context store search call
	AugmentTimeout time.Duration `yaml:"augment_timeout"`

	// BackendTimeout bounds each inference backend call
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	// ContextDBPath is the path to the context store database
	ContextDBPath string `yaml:"context_db_path"`
}

// BackendsConfig identifies the local and remote inference backends.
type BackendsConfig struct {
	// LocalURL is the base URL of the local inference server
	LocalURL string `yaml:"local_url"`

	// LocalModel is the model served by the local backend
	LocalModel string `yaml:"local_model"`

	// RemoteCommand is the CLI binary used for remote completions
	RemoteCommand string `yaml:"remote_command"`

	// RemoteModel is the model hint passed to the remote backend
	RemoteModel string `yaml:"remote_model"`
}

// BreakerConfig holds circuit breaker parameters shared by all breaker
// instances. Each dependency still gets its own independent breaker.
type BreakerConfig struct {
	// FailureRatio is the rolling failure ratio at or above which the
	// circuit opens
	FailureRatio float64 `yaml:"failure_ratio"`

	// WindowSize is the number of recent calls in the sliding window
	WindowSize int `yaml:"window_size"`

	// MinSamples is the minimum window fill before the ratio is evaluated
	MinSamples int `yaml:"min_samples"`

	// Cooldown is how long an open circuit waits before a half-open trial
	Cooldown time.Duration `yaml:"cooldown"`
}

// LearningConfig controls interaction tracking and the learning daemon.
type LearningConfig struct {
	// Enabled enables pattern extraction by the learning daemon
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the interaction/pattern database
	DBPath string `yaml:"db_path"`

	// TelemetryDir is the directory holding append-only telemetry files
	TelemetryDir string `yaml:"telemetry_dir"`

	// CheckpointPath is the path to the daemon's checkpoint file
	CheckpointPath string `yaml:"checkpoint_path"`

	// HighValueThreshold is the value score cutoff for pattern extraction
	HighValueThreshold float64 `yaml:"high_value_threshold"`

	// CheckpointInterval is the number of replayed events between checkpoints
	CheckpointInterval int `yaml:"checkpoint_interval"`

	// Interval is the period between scheduled daemon passes
	Interval time.Duration `yaml:"interval"`

	// MaxConcurrentFiles bounds how many telemetry files replay in parallel
	MaxConcurrentFiles int `yaml:"max_concurrent_files"`
}

// Config represents relay configuration options.
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	Serving  ServingConfig  `yaml:"serving"`
	Backends BackendsConfig `yaml:"backends"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Learning LearningConfig `yaml:"learning"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   ".relay/logs",
		Serving: ServingConfig{
			TopK:                     3,
			LocalConfidenceThreshold: 0.7,
			AugmentTimeout:           2 * time.Second,
			BackendTimeout:           60 * time.Second,
			ContextDBPath:            ".relay/context.db",
		},
		Backends: BackendsConfig{
			LocalURL:      "http://localhost:11434",
			LocalModel:    "llama3.1",
			RemoteCommand: "claude",
			RemoteModel:   "",
		},
		Breaker: BreakerConfig{
			FailureRatio: 0.5,
			WindowSize:   10,
			MinSamples:   3,
			Cooldown:     30 * time.Second,
		},
		Learning: LearningConfig{
			Enabled:            true,
			DBPath:             ".relay/learning.db",
			TelemetryDir:       ".relay/telemetry",
			CheckpointPath:     ".relay/telemetry/checkpoint.json",
			HighValueThreshold: 0.7,
			CheckpointInterval: 100,
			Interval:           time.Hour,
			MaxConcurrentFiles: 4,
		},
	}
}

// yamlConfig mirrors Config with duration fields as strings and optional
// scalars as pointers so absent keys can be distinguished from zero values.
type yamlConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	Serving  struct {
		TopK                     *int     `yaml:"top_k"`
		LocalConfidenceThreshold *float64 `yaml:"local_confidence_threshold"`
		AugmentTimeout           string   `yaml:"augment_timeout"`
		BackendTimeout           string   `yaml:"backend_timeout"`
		ContextDBPath            string   `yaml:"context_db_path"`
	} `yaml:"serving"`
	Backends struct {
		LocalURL      string `yaml:"local_url"`
		LocalModel    string `yaml:"local_model"`
		RemoteCommand string `yaml:"remote_command"`
		RemoteModel   string `yaml:"remote_model"`
	} `yaml:"backends"`
	Breaker struct {
		FailureRatio *float64 `yaml:"failure_ratio"`
		WindowSize   *int     `yaml:"window_size"`
		MinSamples   *int     `yaml:"min_samples"`
		Cooldown     string   `yaml:"cooldown"`
	} `yaml:"breaker"`
	Learning struct {
		Enabled            *bool    `yaml:"enabled"`
		DBPath             string   `yaml:"db_path"`
		TelemetryDir       string   `yaml:"telemetry_dir"`
		CheckpointPath     string   `yaml:"checkpoint_path"`
		HighValueThreshold *float64 `yaml:"high_value_threshold"`
		CheckpointInterval *int     `yaml:"checkpoint_interval"`
		Interval           string   `yaml:"interval"`
		MaxConcurrentFiles *int     `yaml:"max_concurrent_files"`
	} `yaml:"learning"`
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// First run without a config file is a normal case.
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}

	if yamlCfg.Serving.TopK != nil {
		cfg.Serving.TopK = *yamlCfg.Serving.TopK
	}
	if yamlCfg.Serving.LocalConfidenceThreshold != nil {
		cfg.Serving.LocalConfidenceThreshold = *yamlCfg.Serving.LocalConfidenceThreshold
	}
	if err := mergeDuration(&cfg.Serving.AugmentTimeout, yamlCfg.Serving.AugmentTimeout, "serving.augment_timeout"); err != nil {
		return nil, err
	}
	if err := mergeDuration(&cfg.Serving.BackendTimeout, yamlCfg.Serving.BackendTimeout, "serving.backend_timeout"); err != nil {
		return nil, err
	}
	if yamlCfg.Serving.ContextDBPath != "" {
		cfg.Serving.ContextDBPath = yamlCfg.Serving.ContextDBPath
	}

	if yamlCfg.Backends.LocalURL != "" {
		cfg.Backends.LocalURL = yamlCfg.Backends.LocalURL
	}
	if yamlCfg.Backends.LocalModel != "" {
		cfg.Backends.LocalModel = yamlCfg.Backends.LocalModel
	}
	if yamlCfg.Backends.RemoteCommand != "" {
		cfg.Backends.RemoteCommand = yamlCfg.Backends.RemoteCommand
	}
	if yamlCfg.Backends.RemoteModel != "" {
		cfg.Backends.RemoteModel = yamlCfg.Backends.RemoteModel
	}

	if yamlCfg.Breaker.FailureRatio != nil {
		cfg.Breaker.FailureRatio = *yamlCfg.Breaker.FailureRatio
	}
	if yamlCfg.Breaker.WindowSize != nil {
		cfg.Breaker.WindowSize = *yamlCfg.Breaker.WindowSize
	}
	if yamlCfg.Breaker.MinSamples != nil {
		cfg.Breaker.MinSamples = *yamlCfg.Breaker.MinSamples
	}
	if err := mergeDuration(&cfg.Breaker.Cooldown, yamlCfg.Breaker.Cooldown, "breaker.cooldown"); err != nil {
		return nil, err
	}

	if yamlCfg.Learning.Enabled != nil {
		cfg.Learning.Enabled = *yamlCfg.Learning.Enabled
	}
	if yamlCfg.Learning.DBPath != "" {
		cfg.Learning.DBPath = yamlCfg.Learning.DBPath
	}
	if yamlCfg.Learning.TelemetryDir != "" {
		cfg.Learning.TelemetryDir = yamlCfg.Learning.TelemetryDir
	}
	if yamlCfg.Learning.CheckpointPath != "" {
		cfg.Learning.CheckpointPath = yamlCfg.Learning.CheckpointPath
	}
	if yamlCfg.Learning.HighValueThreshold != nil {
		cfg.Learning.HighValueThreshold = *yamlCfg.Learning.HighValueThreshold
	}
	if yamlCfg.Learning.CheckpointInterval != nil {
		cfg.Learning.CheckpointInterval = *yamlCfg.Learning.CheckpointInterval
	}
	if err := mergeDuration(&cfg.Learning.Interval, yamlCfg.Learning.Interval, "learning.interval"); err != nil {
		return nil, err
	}
	if yamlCfg.Learning.MaxConcurrentFiles != nil {
		cfg.Learning.MaxConcurrentFiles = *yamlCfg.Learning.MaxConcurrentFiles
	}

	return cfg, nil
}

// mergeDuration parses a duration string from YAML into dst when present.
func mergeDuration(dst *time.Duration, raw string, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from .relay/config.yaml in the
// specified directory. Missing directory or file yields defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".relay", "config.yaml"))
}

// Validate validates the configuration values.
// Configuration errors are fatal at startup: the pipeline refuses to run
// with undefined thresholds or intervals.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Serving.TopK <= 0 {
		return fmt.Errorf("serving.top_k must be > 0, got %d", c.Serving.TopK)
	}
	if c.Serving.LocalConfidenceThreshold < 0 || c.Serving.LocalConfidenceThreshold > 1 {
		return fmt.Errorf("serving.local_confidence_threshold must be in [0,1], got %v", c.Serving.LocalConfidenceThreshold)
	}
	if c.Serving.AugmentTimeout <= 0 {
		return fmt.Errorf("serving.augment_timeout must be > 0, got %v", c.Serving.AugmentTimeout)
	}
	if c.Serving.BackendTimeout <= 0 {
		return fmt.Errorf("serving.backend_timeout must be > 0, got %v", c.Serving.BackendTimeout)
	}

	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker.failure_ratio must be in (0,1], got %v", c.Breaker.FailureRatio)
	}
	if c.Breaker.WindowSize <= 0 {
		return fmt.Errorf("breaker.window_size must be > 0, got %d", c.Breaker.WindowSize)
	}
	if c.Breaker.MinSamples <= 0 || c.Breaker.MinSamples > c.Breaker.WindowSize {
		return fmt.Errorf("breaker.min_samples must be in [1,window_size], got %d", c.Breaker.MinSamples)
	}
	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker.cooldown must be > 0, got %v", c.Breaker.Cooldown)
	}

	if c.Learning.HighValueThreshold < 0 || c.Learning.HighValueThreshold > 1 {
		return fmt.Errorf("learning.high_value_threshold must be in [0,1], got %v", c.Learning.HighValueThreshold)
	}
	if c.Learning.CheckpointInterval <= 0 {
		return fmt.Errorf("learning.checkpoint_interval must be > 0, got %d", c.Learning.CheckpointInterval)
	}
	if c.Learning.Interval <= 0 {
		return fmt.Errorf("learning.interval must be > 0, got %v", c.Learning.Interval)
	}
	if c.Learning.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("learning.max_concurrent_files must be > 0, got %d", c.Learning.MaxConcurrentFiles)
	}
	if c.Learning.Enabled {
		if c.Learning.DBPath == "" {
			return fmt.Errorf("learning.db_path cannot be empty when learning is enabled")
		}
		if c.Learning.TelemetryDir == "" {
			return fmt.Errorf("learning.telemetry_dir cannot be empty when learning is enabled")
		}
		if c.Learning.CheckpointPath == "" {
			return fmt.Errorf("learning.checkpoint_path cannot be empty when learning is enabled")
		}
	}

	return nil
}
