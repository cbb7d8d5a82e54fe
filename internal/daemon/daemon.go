// Package daemon runs the continuous learning pass: replaying telemetry
// files from checkpointed offsets, scoring-gated pattern extraction, and
// durable checkpointing.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/relay/internal/checkpoint"
	"github.com/harrison/relay/internal/filelock"
	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/models"
	"github.com/harrison/relay/internal/telemetry"
)

// ErrPassOwned is returned when another process already holds the learn lock
// for the telemetry directory. The checkpoint has a single owner; two
// concurrent passes would clobber each other's offsets.
var ErrPassOwned = errors.New("daemon: another learning process owns this telemetry directory")

// Extractor derives a pattern from a resolved high-value interaction.
type Extractor interface {
	Extract(ctx context.Context, in *models.Interaction) (*models.Pattern, error)
}

// Options tune a learning daemon.
type Options struct {
	// TelemetryDir is the directory holding *.jsonl event files.
	TelemetryDir string

	// HighValueThreshold gates extraction: outcome events at or above it
	// are extracted.
	HighValueThreshold float64

	// CheckpointInterval is the number of processed events between durable
	// checkpoint saves within one file.
	CheckpointInterval int

	// Interval is the delay between passes in watch mode.
	Interval time.Duration

	// MaxConcurrentFiles bounds how many telemetry files replay in parallel.
	MaxConcurrentFiles int
}

func (o *Options) applyDefaults() {
	if o.HighValueThreshold <= 0 {
		o.HighValueThreshold = 0.7
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = 100
	}
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.MaxConcurrentFiles <= 0 {
		o.MaxConcurrentFiles = 4
	}
}

// Daemon replays the telemetry log and extracts patterns from high-value
// outcome events. Exactly one daemon should own a checkpoint file.
type Daemon struct {
	opts        Options
	checkpoints *checkpoint.Store
	extractor   Extractor
	log         logger.Logger

	// mu guards checkpoint mutation and saving across per-file goroutines.
	mu sync.Mutex

	trigger chan struct{}
}

// New creates a learning daemon. log may be nil.
func New(opts Options, checkpoints *checkpoint.Store, extractor Extractor, log logger.Logger) *Daemon {
	opts.applyDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Daemon{
		opts:        opts,
		checkpoints: checkpoints,
		extractor:   extractor,
		log:         log,
		trigger:     make(chan struct{}, 1),
	}
}

// Run executes passes on the configured interval until ctx is cancelled,
// holding the learn lock for the whole run. An immediate first pass runs on
// entry; TriggerNow forces a pass between ticks.
func (d *Daemon) Run(ctx context.Context) error {
	release, err := d.acquireOwnership()
	if err != nil {
		return err
	}
	defer release()

	if err := d.runPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.log.LogError(fmt.Sprintf("learning pass failed: %v", err))
	}

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.trigger:
		}

		if err := d.runPass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			d.log.LogError(fmt.Sprintf("learning pass failed: %v", err))
		}
	}
}

// TriggerNow requests an immediate pass in watch mode. Non-blocking; a
// pending trigger coalesces with this one.
func (d *Daemon) TriggerNow() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// RunOnce executes a single learning pass over all telemetry files, taking
// and releasing the learn lock around it.
func (d *Daemon) RunOnce(ctx context.Context) error {
	release, err := d.acquireOwnership()
	if err != nil {
		return err
	}
	defer release()

	return d.runPass(ctx)
}

// acquireOwnership takes the exclusive learn lock for the telemetry
// directory. The lock is tied to the process, so a crash releases it.
func (d *Daemon) acquireOwnership() (func(), error) {
	if err := os.MkdirAll(d.opts.TelemetryDir, 0755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	lock := filelock.NewFileLock(filepath.Join(d.opts.TelemetryDir, "learn.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrPassOwned, d.opts.TelemetryDir)
	}
	return func() { lock.Unlock() }, nil
}

// runPass replays all telemetry files once. Files replay concurrently;
// events within one file replay in order.
func (d *Daemon) runPass(ctx context.Context) error {
	cp, err := d.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(d.opts.TelemetryDir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("list telemetry files: %w", err)
	}
	if len(files) == 0 {
		d.log.LogDebug("no telemetry files to replay")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxConcurrentFiles)

	for _, file := range files {
		file := file
		g.Go(func() error {
			return d.processFile(gctx, cp, file)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkpoints.Save(cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	d.log.LogInfo(fmt.Sprintf("learning pass complete: %d events processed total", cp.ProcessedCount))
	return nil
}

// processFile replays one telemetry file from its checkpointed offset.
func (d *Daemon) processFile(ctx context.Context, cp *checkpoint.Checkpoint, path string) error {
	d.mu.Lock()
	start := cp.Position(path)
	d.mu.Unlock()

	sc, err := telemetry.OpenScanner(path, start)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Rotated away between listing and opening; keep the entry.
			d.log.LogDebug(fmt.Sprintf("telemetry file %s disappeared, skipping", path))
			return nil
		}
		return err
	}
	defer sc.Close()

	sinceSave := 0
	for {
		if ctx.Err() != nil {
			// Persist progress at this boundary; the next pass resumes here.
			d.commit(cp, path, sc.Offset(), true)
			return ctx.Err()
		}

		ev, err := sc.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, telemetry.ErrMalformedLine) {
			d.log.LogWarn(fmt.Sprintf("skipping malformed telemetry line in %s: %v", path, err))
			continue
		}
		if err != nil {
			d.commit(cp, path, sc.Offset(), true)
			return fmt.Errorf("replay %s: %w", path, err)
		}

		d.handleEvent(ctx, ev)

		d.mu.Lock()
		cp.ProcessedCount++
		d.mu.Unlock()

		sinceSave++
		if sinceSave >= d.opts.CheckpointInterval {
			d.commit(cp, path, sc.Offset(), true)
			sinceSave = 0
		}
	}

	d.commit(cp, path, sc.Offset(), sinceSave > 0)
	return nil
}

// commit advances the in-memory offset and optionally saves durably.
// Save failures are logged, not fatal: losing a checkpoint means replaying
// events, which extraction dedup makes harmless.
func (d *Daemon) commit(cp *checkpoint.Checkpoint, path string, offset int64, durable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp.SetPosition(path, offset)
	if durable {
		if err := d.checkpoints.Save(cp); err != nil {
			d.log.LogWarn(fmt.Sprintf("checkpoint save failed: %v", err))
		}
	}
}

// handleEvent extracts a pattern from qualifying outcome events.
// Extraction failures are logged and never halt the pass.
func (d *Daemon) handleEvent(ctx context.Context, ev *telemetry.Event) {
	if ev.Kind != telemetry.KindOutcome {
		return
	}
	if !ev.Outcome.IsTerminal() || ev.ValueScore < d.opts.HighValueThreshold {
		return
	}
	if d.extractor == nil {
		return
	}

	in := interactionFromEvent(ev)
	if _, err := d.extractor.Extract(ctx, in); err != nil {
		d.log.LogWarn(fmt.Sprintf("pattern extraction for %s failed: %v", ev.InteractionID, err))
		return
	}
	d.log.LogInfo(fmt.Sprintf("extracted pattern from interaction %s (score %.2f)", ev.InteractionID, ev.ValueScore))
}

// interactionFromEvent rebuilds the interaction snapshot carried by an
// outcome event.
func interactionFromEvent(ev *telemetry.Event) *models.Interaction {
	return &models.Interaction{
		ID:           ev.InteractionID,
		Query:        ev.Query,
		Response:     ev.Response,
		AgentType:    ev.AgentType,
		ModelUsed:    ev.ModelUsed,
		ContextIDs:   ev.ContextIDs,
		Outcome:      ev.Outcome,
		UserFeedback: ev.UserFeedback,
		TokensUsed:   ev.TokensUsed,
		LatencyMs:    ev.LatencyMs,
		ValueScore:   ev.ValueScore,
		CreatedAt:    ev.Timestamp,
	}
}
