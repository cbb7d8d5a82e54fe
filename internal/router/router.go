// Package router decides which inference backend serves each query.
//
// Routing is local-first: the query goes to the local model unless its
// breaker is open, the call fails, or the completion comes back below the
// confidence threshold, in which case it escalates to the remote backend.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/relay/internal/backend"
	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/models"
)

// ErrNoBackendAvailable is returned when neither backend can serve a query.
var ErrNoBackendAvailable = errors.New("router: no backend available")

// Decision is the result of routing one query.
type Decision struct {
	Completion *backend.Completion
	AgentType  models.AgentType

	// Escalated is true when the query was served remotely after a local
	// attempt (failure or low confidence).
	Escalated bool
}

// Router routes queries between the local and remote backends, each guarded
// by its own circuit breaker.
type Router struct {
	local  backend.Backend
	remote backend.Backend

	localBreaker  *breaker.Breaker
	remoteBreaker *breaker.Breaker

	confidenceThreshold float64
	log                 logger.Logger
}

// New creates a Router. log may be nil. confidenceThreshold at or below zero
// falls back to 0.7.
func New(local, remote backend.Backend, localBr, remoteBr *breaker.Breaker, confidenceThreshold float64, log logger.Logger) *Router {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.7
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Router{
		local:               local,
		remote:              remote,
		localBreaker:        localBr,
		remoteBreaker:       remoteBr,
		confidenceThreshold: confidenceThreshold,
		log:                 log,
	}
}

// Route serves the prompt. modelHint overrides the chosen backend's default
// model when non-empty.
func (r *Router) Route(ctx context.Context, prompt string, modelHint string) (*Decision, error) {
	localComp, localErr := r.complete(ctx, r.local, r.localBreaker, prompt, modelHint)

	if localErr == nil && localComp.Confidence >= r.confidenceThreshold {
		return &Decision{Completion: localComp, AgentType: models.AgentLocal}, nil
	}

	if localErr != nil {
		r.log.LogDebug(fmt.Sprintf("local backend unavailable, escalating: %v", localErr))
	} else {
		r.log.LogDebug(fmt.Sprintf("local confidence %.2f below threshold %.2f, escalating",
			localComp.Confidence, r.confidenceThreshold))
	}

	remoteComp, remoteErr := r.complete(ctx, r.remote, r.remoteBreaker, prompt, modelHint)
	if remoteErr == nil {
		return &Decision{Completion: remoteComp, AgentType: models.AgentRemote, Escalated: true}, nil
	}

	// Remote escalation failed. A low-confidence local answer still beats
	// no answer.
	if localErr == nil {
		r.log.LogWarn(fmt.Sprintf("remote escalation failed, serving low-confidence local answer: %v", remoteErr))
		return &Decision{Completion: localComp, AgentType: models.AgentLocal}, nil
	}

	return nil, fmt.Errorf("%w: local: %v; remote: %v", ErrNoBackendAvailable, localErr, remoteErr)
}

func (r *Router) complete(ctx context.Context, b backend.Backend, br *breaker.Breaker, prompt, modelHint string) (*backend.Completion, error) {
	var comp *backend.Completion
	err := br.Do(ctx, func(ctx context.Context) error {
		var callErr error
		comp, callErr = b.Complete(ctx, prompt, modelHint)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}
