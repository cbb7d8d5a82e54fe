// Package telemetry implements the append-only, line-delimited event log
// that the learning pipeline replays. One JSON object per line; files are
// never rewritten in place, only appended to or rotated externally.
package telemetry

import (
	"time"

	"github.com/harrison/relay/internal/models"
)

// Kind distinguishes lifecycle stages of an interaction on the wire.
type Kind string

const (
	// KindCreated is appended when an interaction is first served.
	KindCreated Kind = "created"

	// KindOutcome is appended when a terminal outcome and value score are
	// recorded for an interaction.
	KindOutcome Kind = "outcome"
)

// Event is one telemetry log line: an interaction snapshot plus provenance.
type Event struct {
	Kind            Kind      `json:"kind"`
	SourceComponent string    `json:"source_component"`
	Timestamp       time.Time `json:"timestamp"`

	InteractionID string           `json:"interaction_id"`
	Query         string           `json:"query"`
	Response      string           `json:"response,omitempty"`
	AgentType     models.AgentType `json:"agent_type"`
	ModelUsed     string           `json:"model_used,omitempty"`
	ContextIDs    []string         `json:"context_ids,omitempty"`
	Outcome       models.Outcome   `json:"outcome"`
	UserFeedback  models.Feedback  `json:"user_feedback"`
	TokensUsed    int              `json:"tokens_used"`
	LatencyMs     int64            `json:"latency_ms"`
	ValueScore    float64          `json:"value_score"`
}

// FromInteraction builds an event of the given kind from an interaction
// snapshot, stamped with the source component and the current time.
func FromInteraction(kind Kind, source string, in *models.Interaction) Event {
	return Event{
		Kind:            kind,
		SourceComponent: source,
		Timestamp:       time.Now().UTC(),
		InteractionID:   in.ID,
		Query:           in.Query,
		Response:        in.Response,
		AgentType:       in.AgentType,
		ModelUsed:       in.ModelUsed,
		ContextIDs:      in.ContextIDs,
		Outcome:         in.Outcome,
		UserFeedback:    in.UserFeedback,
		TokensUsed:      in.TokensUsed,
		LatencyMs:       in.LatencyMs,
		ValueScore:      in.ValueScore,
	}
}
