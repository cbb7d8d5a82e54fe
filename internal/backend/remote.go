package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RemoteBackend invokes a frontier model through its CLI binary in headless
// mode. It follows the http.Client pattern: create once, use many times.
// Safe for concurrent use.
type RemoteBackend struct {
	// CommandPath is the CLI binary, found in PATH when not absolute.
	CommandPath string

	// Model overrides the CLI's default model when non-empty.
	Model string

	// Timeout bounds each invocation. Zero means the caller's context rules.
	Timeout time.Duration
}

// NewRemoteBackend creates a remote backend invoking the given CLI command.
func NewRemoteBackend(commandPath string, model string, timeout time.Duration) *RemoteBackend {
	if commandPath == "" {
		commandPath = "claude"
	}
	return &RemoteBackend{
		CommandPath: commandPath,
		Model:       model,
		Timeout:     timeout,
	}
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

// cliResult is the JSON envelope printed by the CLI with --output-format json.
type cliResult struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Complete implements Backend by running the CLI in print mode and parsing
// its JSON result envelope.
func (b *RemoteBackend) Complete(ctx context.Context, prompt string, modelHint string) (*Completion, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	ctxToUse := ctx
	var cancel context.CancelFunc
	if b.Timeout > 0 {
		ctxToUse, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	model := b.Model
	if modelHint != "" {
		model = modelHint
	}

	args := []string{"-p", prompt, "--output-format", "json"}
	if model != "" {
		args = append(args, "--model", model)
	}

	cmd := exec.CommandContext(ctxToUse, b.CommandPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxToUse.Err() != nil {
			return nil, fmt.Errorf("remote invocation timed out: %w", ctxToUse.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("remote invocation failed: %w: %s", err, msg)
	}
	latency := time.Since(start).Milliseconds()

	var result cliResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("parse remote output: %w", err)
	}
	if result.IsError {
		return nil, fmt.Errorf("remote model error: %s", result.Result)
	}

	respModel := result.Model
	if respModel == "" {
		respModel = model
	}

	return &Completion{
		Text:       result.Result,
		Confidence: 1.0,
		Model:      respModel,
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		LatencyMs:  latency,
	}, nil
}
