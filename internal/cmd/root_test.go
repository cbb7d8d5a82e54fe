package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	expected := []string{"ask", "outcome", "learn", "stats", "context"}
	var found []string
	for _, c := range root.Commands() {
		found = append(found, c.Name())
	}
	for _, name := range expected {
		assert.Contains(t, found, name)
	}
}

func TestAskRequiresQuery(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestOutcomeRejectsInvalidResult(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "outcome", "some-id", "--result", "great", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid result")
}

func TestOutcomeRejectsInvalidFeedback(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "outcome", "some-id", "--result", "success", "--feedback", "5", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid feedback")
}

func TestOutcomeUnknownInteraction(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "outcome", "no-such-id", "--result", "success", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestContextAddAndSearch(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "context", "add", "nginx reverse proxy uses proxy_pass",
		"--tag", "nginx", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "added context item")

	out, err = execute(t, "context", "search", "nginx proxy", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "proxy_pass")
}

func TestStatsOnEmptyProject(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "stats", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Relay Statistics")
	assert.Contains(t, out, "Total: 0")
}

func TestLearnSinglePassOnEmptyProject(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "learn", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "learning pass complete")
}
