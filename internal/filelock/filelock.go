// Package filelock provides the concurrency-safety primitives for durable
// state in the relay pipeline: OS-level advisory file locking for telemetry
// appends and atomic temp-then-rename writes for checkpoint files.
//
// Locks are tied to the OS file-descriptor table, so a crashed process
// releases its locks automatically. This serializes writers across processes,
// not just goroutines within one process.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when an exclusive lock cannot be acquired within
// the configured bounded wait. The append fails loudly rather than silently
// dropping the event; telemetry loss is a correctness defect.
var ErrLockTimeout = errors.New("filelock: timed out waiting for exclusive lock")

// DefaultLockTimeout bounds how long an appender waits for the exclusive lock.
const DefaultLockTimeout = 5 * time.Second

// lockRetryDelay is the poll interval while waiting on a contended lock.
const lockRetryDelay = 10 * time.Millisecond

// AppendGuard serializes appends to a single file across goroutines and
// processes. Each append acquires an exclusive flock on a sibling ".lock"
// file, writes the payload plus a trailing newline, syncs, and releases.
// A reader holding a shared lock never observes a partial line.
type AppendGuard struct {
	// Timeout bounds the wait for the exclusive lock.
	// Zero means DefaultLockTimeout.
	Timeout time.Duration
}

// WithExclusiveAppend appends data followed by a single newline to the file
// at path, creating the file (and parent directory) if needed. It returns the
// number of payload bytes written, excluding the newline.
//
// Returns ErrLockTimeout (wrapped) if the lock is not acquired in time.
func (g *AppendGuard) WithExclusiveAppend(path string, data []byte) (int, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", path, err)
	}

	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	acquired, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return 0, fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	if !acquired {
		return 0, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return n, fmt.Errorf("append to %s: %w", path, err)
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return n, fmt.Errorf("append newline to %s: %w", path, err)
	}

	// Flush before releasing the lock so no reader taking a shared lock can
	// observe a half-written line.
	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("sync %s: %w", path, err)
	}

	return n, nil
}

// FileLock wraps a flock advisory lock for coordinating access to a file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a lock handle for the given path. The lock file is
// created on first acquisition.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock acquires an exclusive lock, blocking until it is available.
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// TryLock attempts to acquire an exclusive lock without blocking.
// Returns true if the lock was acquired.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// AtomicWrite writes data to a file atomically using a temp file and rename.
// Readers always see either the previous complete file or the new complete
// file, never a torn write, even if the process is killed mid-write.
//
// The temp file is created in the same directory as the target so the rename
// stays within one filesystem, where rename is atomic.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	// Rename succeeded; disarm the cleanup.
	tempFile = nil

	return nil
}

// LockAndWrite acquires an exclusive lock, performs an atomic write, and
// releases the lock. The lock path is the target path with ".lock" appended.
func LockAndWrite(path string, data []byte) error {
	lock := NewFileLock(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}
