package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/relay/internal/backend"
	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/models"
)

type stubBackend struct {
	name       string
	confidence float64
	err        error
	calls      int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Complete(ctx context.Context, prompt string, modelHint string) (*backend.Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Completion{
		Text:       "answer from " + s.name,
		Confidence: s.confidence,
		Model:      s.name + "-model",
	}, nil
}

func newRouter(local, remote backend.Backend) *Router {
	return New(local, remote,
		breaker.New("local", breaker.DefaultSettings()),
		breaker.New("remote", breaker.DefaultSettings()),
		0.7, nil)
}

func TestRouteLocalFirst(t *testing.T) {
	local := &stubBackend{name: "local", confidence: 0.9}
	remote := &stubBackend{name: "remote", confidence: 1.0}

	dec, err := newRouter(local, remote).Route(context.Background(), "q", "")
	require.NoError(t, err)

	assert.Equal(t, models.AgentLocal, dec.AgentType)
	assert.Equal(t, "answer from local", dec.Completion.Text)
	assert.False(t, dec.Escalated)
	assert.Equal(t, 0, remote.calls, "a confident local answer must not touch the remote backend")
}

func TestRouteEscalatesOnLowConfidence(t *testing.T) {
	local := &stubBackend{name: "local", confidence: 0.4}
	remote := &stubBackend{name: "remote", confidence: 1.0}

	dec, err := newRouter(local, remote).Route(context.Background(), "q", "")
	require.NoError(t, err)

	assert.Equal(t, models.AgentRemote, dec.AgentType)
	assert.Equal(t, "answer from remote", dec.Completion.Text)
	assert.True(t, dec.Escalated)
	assert.Equal(t, 1, local.calls)
}

func TestRouteEscalatesOnLocalFailure(t *testing.T) {
	local := &stubBackend{name: "local", err: errors.New("connection refused")}
	remote := &stubBackend{name: "remote", confidence: 1.0}

	dec, err := newRouter(local, remote).Route(context.Background(), "q", "")
	require.NoError(t, err)

	assert.Equal(t, models.AgentRemote, dec.AgentType)
	assert.True(t, dec.Escalated)
}

func TestRouteSkipsLocalWhenBreakerOpen(t *testing.T) {
	local := &stubBackend{name: "local", err: errors.New("down")}
	remote := &stubBackend{name: "remote", confidence: 1.0}

	localBr := breaker.New("local", breaker.Settings{
		FailureRatio: 0.5,
		WindowSize:   4,
		MinSamples:   2,
		Cooldown:     time.Minute,
	})
	r := New(local, remote, localBr, breaker.New("remote", breaker.DefaultSettings()), 0.7, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Route(ctx, "q", "")
		require.NoError(t, err)
	}
	require.Equal(t, breaker.StateOpen, localBr.State())

	callsBefore := local.calls
	dec, err := r.Route(ctx, "q", "")
	require.NoError(t, err)
	assert.Equal(t, models.AgentRemote, dec.AgentType)
	assert.Equal(t, callsBefore, local.calls, "an open local breaker must fail fast without a local call")
}

func TestRouteFallsBackToLowConfidenceLocal(t *testing.T) {
	local := &stubBackend{name: "local", confidence: 0.4}
	remote := &stubBackend{name: "remote", err: errors.New("quota exhausted")}

	dec, err := newRouter(local, remote).Route(context.Background(), "q", "")
	require.NoError(t, err)

	assert.Equal(t, models.AgentLocal, dec.AgentType)
	assert.Equal(t, "answer from local", dec.Completion.Text)
}

func TestRouteNoBackendAvailable(t *testing.T) {
	local := &stubBackend{name: "local", err: errors.New("down")}
	remote := &stubBackend{name: "remote", err: errors.New("also down")}

	_, err := newRouter(local, remote).Route(context.Background(), "q", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
}

func TestRouteModelHintPassedThrough(t *testing.T) {
	var gotHint string
	local := &stubBackend{name: "local", confidence: 0.9}
	r := New(backendFunc(func(ctx context.Context, prompt, hint string) (*backend.Completion, error) {
		gotHint = hint
		return &backend.Completion{Text: "ok", Confidence: 1.0}, nil
	}), local,
		breaker.New("local", breaker.DefaultSettings()),
		breaker.New("remote", breaker.DefaultSettings()),
		0.7, nil)

	_, err := r.Route(context.Background(), "q", "llama3.1:70b")
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:70b", gotHint)
}

// backendFunc adapts a function to the Backend interface.
type backendFunc func(ctx context.Context, prompt, modelHint string) (*backend.Completion, error)

func (backendFunc) Name() string { return "func" }

func (f backendFunc) Complete(ctx context.Context, prompt, modelHint string) (*backend.Completion, error) {
	return f(ctx, prompt, modelHint)
}
