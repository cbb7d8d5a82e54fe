package pattern

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/relay/internal/backend"
	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/models"
)

// fakeBackend returns a canned completion or error.
type fakeBackend struct {
	text  string
	err   error
	calls int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, prompt string, modelHint string) (*backend.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Completion{Text: f.text, Confidence: 1.0, Model: "fake-model"}, nil
}

func scoredInteraction() *models.Interaction {
	return &models.Interaction{
		ID:         "int-001",
		Query:      "how to configure nginx reverse proxy",
		Response:   "Use proxy_pass inside a location block.",
		AgentType:  models.AgentLocal,
		Outcome:    models.OutcomeSuccess,
		ValueScore: 0.85,
		CreatedAt:  time.Now().UTC(),
	}
}

const validExtraction = `{
	"skill_name": "nginx_reverse_proxy",
	"description": "Configure nginx as a reverse proxy",
	"usage_pattern": "define a location block and set proxy_pass to the upstream",
	"prerequisites": ["nginx"]
}`

func newTestExtractor(t *testing.T, b backend.Backend) (*Extractor, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	br := breaker.New("extraction", breaker.DefaultSettings())
	return NewExtractor(b, br, store, nil), store
}

func TestExtractStoresPattern(t *testing.T) {
	fake := &fakeBackend{text: validExtraction}
	ex, store := newTestExtractor(t, fake)

	p, err := ex.Extract(context.Background(), scoredInteraction())
	require.NoError(t, err)

	assert.Equal(t, "nginx_reverse_proxy", p.SkillName)
	assert.Equal(t, 0.85, p.ValueScore)
	assert.Equal(t, []string{"how to configure nginx reverse proxy"}, p.SuccessExamples)
	assert.NotEmpty(t, p.ContentHash)

	stored, err := store.GetByHash(context.Background(), p.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, p.ID, stored.ID)
}

func TestExtractTwiceDeduplicates(t *testing.T) {
	fake := &fakeBackend{text: validExtraction}
	ex, store := newTestExtractor(t, fake)
	ctx := context.Background()

	_, err := ex.Extract(ctx, scoredInteraction())
	require.NoError(t, err)
	_, err = ex.Extract(ctx, scoredInteraction())
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "replaying the same interaction must not duplicate the pattern")
}

func TestExtractToleratesCodeFence(t *testing.T) {
	fake := &fakeBackend{text: "```json\n" + validExtraction + "\n```"}
	ex, _ := newTestExtractor(t, fake)

	p, err := ex.Extract(context.Background(), scoredInteraction())
	require.NoError(t, err)
	assert.Equal(t, "nginx_reverse_proxy", p.SkillName)
}

func TestExtractRejectsMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose", "Here is the pattern I found: it configures nginx."},
		{"missing skill name", `{"description": "d", "usage_pattern": "u"}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, store := newTestExtractor(t, &fakeBackend{text: tt.text})

			_, err := ex.Extract(context.Background(), scoredInteraction())
			require.Error(t, err)

			count, err := store.Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(0), count, "a failed parse must not write a pattern")
		})
	}
}

func TestExtractBackendFailure(t *testing.T) {
	fake := &fakeBackend{err: errors.New("model unavailable")}
	ex, store := newTestExtractor(t, fake)

	_, err := ex.Extract(context.Background(), scoredInteraction())
	require.Error(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestExtractFailureExample(t *testing.T) {
	fake := &fakeBackend{text: validExtraction}
	ex, _ := newTestExtractor(t, fake)

	in := scoredInteraction()
	in.Outcome = models.OutcomeFailure
	p, err := ex.Extract(context.Background(), in)
	require.NoError(t, err)

	assert.Empty(t, p.SuccessExamples)
	assert.Equal(t, []string{in.Query}, p.FailureExamples)
}
