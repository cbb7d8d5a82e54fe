package telemetry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harrison/relay/internal/filelock"
)

// Log appends events to day-stamped JSONL files in a telemetry directory.
// Appends are serialized across goroutines and processes by an exclusive
// file lock held for the full write+flush, so readers never observe a
// partial line. Day stamping keeps files rotation-friendly; rotation itself
// is external to this package.
type Log struct {
	dir   string
	guard *filelock.AppendGuard

	// now is injectable for tests.
	now func() time.Time
}

// NewLog creates a telemetry log rooted at dir.
func NewLog(dir string) *Log {
	return &Log{
		dir:   dir,
		guard: &filelock.AppendGuard{},
		now:   time.Now,
	}
}

// Dir returns the telemetry directory.
func (l *Log) Dir() string {
	return l.dir
}

// CurrentFile returns the path events append to right now.
func (l *Log) CurrentFile() string {
	return filepath.Join(l.dir, fmt.Sprintf("events-%s.jsonl", l.now().UTC().Format("2006-01-02")))
}

// Append serializes the event and appends it as one line to the current
// file. A lock-acquisition timeout surfaces as filelock.ErrLockTimeout
// (wrapped); the event is never silently dropped.
func (l *Log) Append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}

	if _, err := l.guard.WithExclusiveAppend(l.CurrentFile(), data); err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// Files lists the telemetry files currently present in the directory,
// sorted by name (day-stamped names sort chronologically).
func (l *Log) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list telemetry files: %w", err)
	}
	return matches, nil
}
