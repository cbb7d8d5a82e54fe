// Package models defines the core data types shared across the relay
// coordination pipeline: interactions, context items, and extracted patterns.
package models

import (
	"fmt"
	"time"
)

// AgentType identifies which processing path served an interaction.
type AgentType string

const (
	// AgentLocal indicates the local inference backend served the request.
	AgentLocal AgentType = "local"

	// AgentRemote indicates a remote inference backend served the request.
	AgentRemote AgentType = "remote"
)

// Valid reports whether the agent type is a known value.
func (a AgentType) Valid() bool {
	return a == AgentLocal || a == AgentRemote
}

// Outcome is the terminal result of a served interaction.
type Outcome string

const (
	// OutcomeUnknown is the initial state before any outcome is reported.
	OutcomeUnknown Outcome = "unknown"

	// OutcomeSuccess indicates the response solved the user's problem.
	OutcomeSuccess Outcome = "success"

	// OutcomePartial indicates the response was partially useful.
	OutcomePartial Outcome = "partial"

	// OutcomeFailure indicates the response did not help.
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether the outcome is a known value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeUnknown, OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

// IsTerminal reports whether the outcome is final.
// Terminal outcomes never transition again.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomePartial || o == OutcomeFailure
}

// CanTransitionTo reports whether a transition from o to next is allowed.
// Outcomes only move forward: unknown -> {success, partial, failure}.
func (o Outcome) CanTransitionTo(next Outcome) bool {
	if !next.Valid() || next == OutcomeUnknown {
		return false
	}
	return o == OutcomeUnknown
}

// Feedback is explicit user feedback on a served response.
type Feedback int

const (
	// FeedbackNegative indicates the user rated the response unhelpful.
	FeedbackNegative Feedback = -1

	// FeedbackNeutral indicates no explicit rating.
	FeedbackNeutral Feedback = 0

	// FeedbackPositive indicates the user rated the response helpful.
	FeedbackPositive Feedback = 1
)

// Valid reports whether the feedback value is in range.
func (f Feedback) Valid() bool {
	return f >= FeedbackNegative && f <= FeedbackPositive
}

// Interaction represents one served query/response pair and its lifecycle.
//
// ValueScore is computed exactly once by the scoring engine when a terminal
// outcome is recorded; it is never supplied by callers. ScoredAt remains nil
// until that happens.
type Interaction struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	Response     string     `json:"response"`
	AgentType    AgentType  `json:"agent_type"`
	ModelUsed    string     `json:"model_used"`
	ContextIDs   []string   `json:"context_ids"`
	Outcome      Outcome    `json:"outcome"`
	UserFeedback Feedback   `json:"user_feedback"`
	TokensUsed   int        `json:"tokens_used"`
	LatencyMs    int64      `json:"latency_ms"`
	ValueScore   float64    `json:"value_score"`
	CreatedAt    time.Time  `json:"created_at"`
	ScoredAt     *time.Time `json:"scored_at,omitempty"`
}

// Validate checks structural invariants on a new interaction record.
func (in *Interaction) Validate() error {
	if in.Query == "" {
		return fmt.Errorf("interaction query cannot be empty")
	}
	if !in.AgentType.Valid() {
		return fmt.Errorf("invalid agent type %q", in.AgentType)
	}
	if !in.Outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", in.Outcome)
	}
	if !in.UserFeedback.Valid() {
		return fmt.Errorf("invalid user feedback %d", in.UserFeedback)
	}
	if in.TokensUsed < 0 {
		return fmt.Errorf("tokens_used must be >= 0, got %d", in.TokensUsed)
	}
	if in.LatencyMs < 0 {
		return fmt.Errorf("latency_ms must be >= 0, got %d", in.LatencyMs)
	}
	return nil
}
