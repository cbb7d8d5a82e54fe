package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/relay/internal/augment"
	"github.com/harrison/relay/internal/backend"
	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/checkpoint"
	"github.com/harrison/relay/internal/config"
	"github.com/harrison/relay/internal/contextstore"
	"github.com/harrison/relay/internal/daemon"
	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/pattern"
	"github.com/harrison/relay/internal/router"
	"github.com/harrison/relay/internal/scoring"
	"github.com/harrison/relay/internal/telemetry"
	"github.com/harrison/relay/internal/tracker"
)

// app holds the wired component graph for one CLI invocation.
// Components are built from config once and shared across the command.
type app struct {
	cfg     *config.Config
	baseDir string

	log     logger.Logger
	fileLog *logger.FileLogger

	contexts  *contextstore.Store
	tracker   *tracker.Store
	patterns  *pattern.Store
	events    *telemetry.Log
	engine    *scoring.Engine
	augmenter *augment.Service
	router    *router.Router
	daemon    *daemon.Daemon
}

// newApp loads config from the --dir project directory and wires the full
// component graph. Callers must Close.
func newApp(cmd *cobra.Command) (*app, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		dir = "."
	}

	cfg, err := config.LoadConfigFromDir(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, baseDir: dir}

	console := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	if fileLog, err := logger.NewFileLogger(a.resolve(cfg.LogDir), cfg.LogLevel); err == nil {
		a.fileLog = fileLog
		a.log = logger.NewMulti(console, fileLog)
	} else {
		console.LogWarn(fmt.Sprintf("file logging disabled: %v", err))
		a.log = console
	}

	contexts, err := contextstore.NewStore(a.resolve(cfg.Serving.ContextDBPath))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.contexts = contexts

	settings := breaker.Settings{
		FailureRatio: cfg.Breaker.FailureRatio,
		WindowSize:   cfg.Breaker.WindowSize,
		MinSamples:   cfg.Breaker.MinSamples,
		Cooldown:     cfg.Breaker.Cooldown,
	}

	a.augmenter = augment.NewService(contexts,
		breaker.New("context-store", settings),
		cfg.Serving.TopK, cfg.Serving.AugmentTimeout, a.log)

	local := backend.NewLocalBackend(cfg.Backends.LocalURL, cfg.Backends.LocalModel, cfg.Serving.BackendTimeout)
	remote := backend.NewRemoteBackend(cfg.Backends.RemoteCommand, cfg.Backends.RemoteModel, cfg.Serving.BackendTimeout)

	a.router = router.New(local, remote,
		breaker.New("backend-local", settings),
		breaker.New("backend-remote", settings),
		cfg.Serving.LocalConfidenceThreshold, a.log)

	a.events = telemetry.NewLog(a.resolve(cfg.Learning.TelemetryDir))
	a.engine = scoring.NewEngine(scoring.WithHighValueThreshold(cfg.Learning.HighValueThreshold))

	trackerStore, err := tracker.NewStore(a.resolve(cfg.Learning.DBPath), a.events, a.engine, contexts, a.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tracker = trackerStore

	patterns, err := pattern.NewStore(a.resolve(cfg.Learning.DBPath))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.patterns = patterns

	extractor := pattern.NewExtractor(remote,
		breaker.New("extraction", settings), patterns, a.log)

	a.daemon = daemon.New(daemon.Options{
		TelemetryDir:       a.resolve(cfg.Learning.TelemetryDir),
		HighValueThreshold: cfg.Learning.HighValueThreshold,
		CheckpointInterval: cfg.Learning.CheckpointInterval,
		Interval:           cfg.Learning.Interval,
		MaxConcurrentFiles: cfg.Learning.MaxConcurrentFiles,
	}, checkpoint.NewStore(a.resolve(cfg.Learning.CheckpointPath)), extractor, a.log)

	return a, nil
}

// resolve anchors a relative config path at the project directory.
func (a *app) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.baseDir, path)
}

// Close releases stores and the log file.
func (a *app) Close() {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.patterns != nil {
		a.patterns.Close()
	}
	if a.contexts != nil {
		a.contexts.Close()
	}
	if a.fileLog != nil {
		a.fileLog.Close()
	}
}
