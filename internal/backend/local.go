package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// minEvalTokens is the completion length below which the local backend
// reports reduced confidence. Very short completions from small models are
// usually refusals or non-answers.
const minEvalTokens = 8

// LocalBackend talks to an Ollama-compatible server over HTTP using the
// non-streaming generate endpoint.
type LocalBackend struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewLocalBackend creates a local backend for the Ollama server at baseURL.
// timeout bounds each completion call; pass 0 to rely on the caller's context.
func NewLocalBackend(baseURL string, model string, timeout time.Duration) *LocalBackend {
	return &LocalBackend{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// Ping verifies the server is reachable and the configured model is present.
func (b *LocalBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not connect to local model server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local model server returned %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return err
	}
	for _, m := range tags.Models {
		if m.Name == b.model {
			return nil
		}
	}
	return fmt.Errorf("model '%s' not found locally; run 'ollama pull %s'", b.model, b.model)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response        string   `json:"response"`
	Model           string   `json:"model"`
	Done            bool     `json:"done"`
	EvalCount       int      `json:"eval_count"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Complete implements Backend using the non-streaming /api/generate endpoint.
func (b *LocalBackend) Complete(ctx context.Context, prompt string, modelHint string) (*Completion, error) {
	model := b.model
	if modelHint != "" {
		model = modelHint
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local model server returned %d: %s", resp.StatusCode, raw)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}

	respModel := gen.Model
	if respModel == "" {
		respModel = model
	}

	return &Completion{
		Text:       gen.Response,
		Confidence: localConfidence(&gen),
		Model:      respModel,
		TokensUsed: gen.EvalCount + gen.PromptEvalCount,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// localConfidence derives a confidence estimate for routing. A server that
// supplies an explicit confidence field wins; otherwise an empty or very
// short completion is treated as low-confidence.
func localConfidence(gen *generateResponse) float64 {
	if gen.Confidence != nil {
		return clamp01(*gen.Confidence)
	}
	if gen.Response == "" {
		return 0
	}
	if gen.EvalCount > 0 && gen.EvalCount < minEvalTokens {
		return 0.5
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
