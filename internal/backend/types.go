// Package backend defines the inference backends a query can be routed to:
// a local Ollama-style HTTP server and a remote CLI-invoked model.
package backend

import "context"

// Completion is the result of a single inference call.
type Completion struct {
	// Text is the model's response.
	Text string

	// Confidence is the backend's self-assessed confidence in [0, 1].
	// Backends that cannot estimate confidence report 1.0.
	Confidence float64

	// Model is the model that actually served the request.
	Model string

	// TokensUsed is the total token count, 0 when the backend does not report it.
	TokensUsed int

	// LatencyMs is the wall-clock duration of the call in milliseconds.
	LatencyMs int64
}

// Backend serves completions for prompts. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Name identifies the backend in logs and routing decisions.
	Name() string

	// Complete sends a prompt and returns the completion. modelHint overrides
	// the backend's configured model when non-empty.
	Complete(ctx context.Context, prompt string, modelHint string) (*Completion, error)
}
