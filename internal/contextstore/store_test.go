package contextstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/relay/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "context.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addItem(t *testing.T, s *Store, content string, tags ...string) *models.ContextItem {
	t.Helper()
	item := &models.ContextItem{Content: content, ContentType: "note", Tags: tags}
	require.NoError(t, s.Add(context.Background(), item))
	return item
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := addItem(t, s, "nginx reverse proxy uses proxy_pass", "nginx", "proxy")
	assert.NotEmpty(t, item.ID)

	got, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.Content, got.Content)
	assert.Equal(t, []string{"nginx", "proxy"}, got.Tags)
	assert.Equal(t, int64(0), got.UsageCount)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAddRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Add(context.Background(), &models.ContextItem{}))
}

func TestSearchFindsRelevantItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proxy := addItem(t, s, "nginx reverse proxy uses proxy_pass in a location block")
	addItem(t, s, "postgres credentials rotate monthly via vault")

	results, err := s.Search(ctx, "nginx proxy", 3, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, proxy.ID)
}

func TestSearchRespectsTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		addItem(t, s, "kubernetes deployment rollout strategy notes")
	}

	results, err := s.Search(ctx, "kubernetes rollout", 2, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
	assert.NotEmpty(t, results)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	addItem(t, s, "some content")

	results, err := s.Search(context.Background(), "   ", 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchPunctuationSafe(t *testing.T) {
	s := newTestStore(t)
	addItem(t, s, "error handling for NEAR misses and AND gates")

	_, err := s.Search(context.Background(), `"error" AND (NEAR misses)`, 3, "")
	require.NoError(t, err, "operator-looking input must not break search")
}

func TestSearchReflectsRewrittenAndDeletedContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := addItem(t, s, "apache virtual host setup")

	_, err := s.db.ExecContext(ctx,
		`UPDATE context_items SET content = ? WHERE id = ?`,
		"caddy reverse proxy setup", item.ID)
	require.NoError(t, err)

	results, err := s.Search(ctx, "caddy proxy", 3, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, item.ID, results[0].ID)

	stale, err := s.Search(ctx, "apache", 3, "")
	require.NoError(t, err)
	assert.Empty(t, stale, "rewritten content must leave the old terms unindexed")

	_, err = s.db.ExecContext(ctx, `DELETE FROM context_items WHERE id = ?`, item.ID)
	require.NoError(t, err)

	gone, err := s.Search(ctx, "caddy proxy", 3, "")
	require.NoError(t, err)
	assert.Empty(t, gone, "deleted rows must drop out of the index")
}

func TestSearchFiltersByContentType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snippet := &models.ContextItem{Content: "nginx proxy_pass snippet", ContentType: "snippet"}
	require.NoError(t, s.Add(ctx, snippet))
	addItem(t, s, "nginx proxy general note")

	results, err := s.Search(ctx, "nginx proxy", 5, "snippet")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "snippet", r.ContentType)
	}
}

func TestRecordUsageMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := addItem(t, s, "usage tracked content")

	require.NoError(t, s.RecordUsage(ctx, []string{item.ID}))
	require.NoError(t, s.RecordUsage(ctx, []string{item.ID, "unknown-id"}))

	got, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UsageCount)
}

func TestRecordOutcomeRecomputesSuccessRate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := addItem(t, s, "outcome tracked content")
	ids := []string{item.ID}

	require.NoError(t, s.RecordOutcome(ctx, ids, true))
	got, err := s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.SuccessRate)

	require.NoError(t, s.RecordOutcome(ctx, ids, false))
	got, err = s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.SuccessRate)

	require.NoError(t, s.RecordOutcome(ctx, ids, true))
	got, err = s.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, got.SuccessRate, 0.0001)
}

func TestRecordOutcomeEmptyIDs(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.RecordOutcome(context.Background(), nil, true))
	assert.NoError(t, s.RecordUsage(context.Background(), nil))
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	addItem(t, s, "one")
	addItem(t, s, "two")

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
