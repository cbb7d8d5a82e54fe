package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	cp, err := store.Load()
	require.NoError(t, err, "first run without a checkpoint is a normal case")

	assert.NotNil(t, cp.LastPositions)
	assert.Empty(t, cp.LastPositions)
	assert.Zero(t, cp.ProcessedCount)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewStore(path)

	cp := NewCheckpoint()
	cp.SetPosition("/var/relay/telemetry/2025-06-01.jsonl", 4096)
	cp.SetPosition("/var/relay/telemetry/2025-06-02.jsonl", 128)
	cp.ProcessedCount = 342

	require.NoError(t, store.Save(cp))
	assert.False(t, cp.Timestamp.IsZero(), "save stamps the checkpoint")

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, int64(4096), loaded.Position("/var/relay/telemetry/2025-06-01.jsonl"))
	assert.Equal(t, int64(128), loaded.Position("/var/relay/telemetry/2025-06-02.jsonl"))
	assert.Equal(t, int64(0), loaded.Position("/var/relay/telemetry/unknown.jsonl"))
	assert.Equal(t, int64(342), loaded.ProcessedCount)
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	store := NewStore(path)

	cp := NewCheckpoint()
	cp.SetPosition("a.jsonl", 1)
	require.NoError(t, store.Save(cp))

	cp.SetPosition("a.jsonl", 2)
	require.NoError(t, store.Save(cp))

	// No temp files may survive a completed save, only the checkpoint and
	// its lock file.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"checkpoint.json", "checkpoint.json.lock"}, names)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Position("a.jsonl"))
}

func TestLoadCorruptFileDegradesToZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{torn write"), 0644))

	store := NewStore(path)
	cp, err := store.Load()
	require.NoError(t, err, "a corrupt checkpoint must not halt the daemon")

	assert.Empty(t, cp.LastPositions)
	assert.Zero(t, cp.ProcessedCount)
}

func TestSaveNilCheckpoint(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	assert.Error(t, store.Save(nil))
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "checkpoint.json")
	store := NewStore(path)

	require.NoError(t, store.Save(NewCheckpoint()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
