// Package checkpoint persists the learning daemon's replay cursor: a byte
// offset per telemetry file plus a processed-event counter.
//
// Saves use the atomic temp-then-rename discipline so a crash mid-write never
// leaves a torn checkpoint; readers always see the previous complete state or
// the new complete state.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/harrison/relay/internal/filelock"
)

// Checkpoint is the durable cursor state owned exclusively by the learning
// daemon.
type Checkpoint struct {
	// LastPositions maps telemetry file path to the byte offset of the next
	// unprocessed line.
	LastPositions map[string]int64 `json:"last_positions"`

	// ProcessedCount is the total number of events replayed across all files.
	ProcessedCount int64 `json:"processed_count"`

	// Timestamp records when the checkpoint was last saved.
	Timestamp time.Time `json:"timestamp"`
}

// NewCheckpoint returns an empty checkpoint with an initialized position map.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		LastPositions: make(map[string]int64),
	}
}

// Position returns the saved byte offset for a telemetry file, zero when the
// file has never been checkpointed.
func (c *Checkpoint) Position(path string) int64 {
	return c.LastPositions[path]
}

// SetPosition advances the byte offset for a telemetry file.
func (c *Checkpoint) SetPosition(path string, offset int64) {
	if c.LastPositions == nil {
		c.LastPositions = make(map[string]int64)
	}
	c.LastPositions[path] = offset
}

// Store reads and writes the checkpoint file.
type Store struct {
	path string
}

// NewStore creates a checkpoint store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted checkpoint. A missing checkpoint file is a
// normal first-run case and yields a zero-value checkpoint, not an error.
// A corrupt checkpoint also degrades to a zero-value checkpoint: replaying
// already-processed events is safe because extraction is idempotent, while
// refusing to start is not.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewCheckpoint(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return NewCheckpoint(), nil
	}
	if cp.LastPositions == nil {
		cp.LastPositions = make(map[string]int64)
	}
	return &cp, nil
}

// Save durably persists the checkpoint via atomic temp-then-rename, with
// writers serialized on a sibling lock file. The checkpoint's Timestamp is
// set to the current time on save.
func (s *Store) Save(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("cannot save nil checkpoint")
	}

	cp.Timestamp = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := filelock.LockAndWrite(s.path, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.path, err)
	}
	return nil
}
