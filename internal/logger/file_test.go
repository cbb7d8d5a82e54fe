package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesRunLog(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	defer fl.Close()

	fl.LogInfo("replay pass started")
	fl.LogError("extraction failed for event")

	content, err := os.ReadFile(fl.RunFile())
	require.NoError(t, err)

	assert.Contains(t, string(content), "=== Relay Run Log ===")
	assert.Contains(t, string(content), "[INFO] replay pass started")
	assert.Contains(t, string(content), "[ERROR] extraction failed for event")
}

func TestFileLoggerLevelFiltering(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLogger(logDir, "warn")
	require.NoError(t, err)
	defer fl.Close()

	fl.LogInfo("hidden")
	fl.LogWarn("shown")

	content, err := os.ReadFile(fl.RunFile())
	require.NoError(t, err)

	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), "[WARN] shown")
}

func TestFileLoggerLatestSymlink(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	defer fl.Close()

	target, err := os.Readlink(filepath.Join(logDir, "latest.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(fl.RunFile()), target)
}

func TestFileLoggerLogAfterClose(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	require.NoError(t, fl.Close())

	// Must not panic.
	fl.LogInfo("after close")
}
