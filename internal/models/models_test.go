package models

import (
	"testing"
	"time"
)

func TestInteractionValidation(t *testing.T) {
	tests := []struct {
		name        string
		interaction Interaction
		wantErr     bool
	}{
		{
			name: "valid interaction",
			interaction: Interaction{
				ID:        "int-1",
				Query:     "how to configure nginx",
				AgentType: AgentLocal,
				Outcome:   OutcomeUnknown,
			},
			wantErr: false,
		},
		{
			name: "missing query",
			interaction: Interaction{
				ID:        "int-1",
				AgentType: AgentLocal,
				Outcome:   OutcomeUnknown,
			},
			wantErr: true,
		},
		{
			name: "invalid agent type",
			interaction: Interaction{
				Query:     "q",
				AgentType: AgentType("cloud"),
				Outcome:   OutcomeUnknown,
			},
			wantErr: true,
		},
		{
			name: "invalid outcome",
			interaction: Interaction{
				Query:     "q",
				AgentType: AgentRemote,
				Outcome:   Outcome("maybe"),
			},
			wantErr: true,
		},
		{
			name: "out of range feedback",
			interaction: Interaction{
				Query:        "q",
				AgentType:    AgentLocal,
				Outcome:      OutcomeUnknown,
				UserFeedback: Feedback(2),
			},
			wantErr: true,
		},
		{
			name: "negative token count",
			interaction: Interaction{
				Query:      "q",
				AgentType:  AgentLocal,
				Outcome:    OutcomeUnknown,
				TokensUsed: -1,
			},
			wantErr: true,
		},
		{
			name: "negative latency",
			interaction: Interaction{
				Query:     "q",
				AgentType: AgentLocal,
				Outcome:   OutcomeUnknown,
				LatencyMs: -5,
			},
			wantErr: true,
		},
		{
			name: "valid with optional fields",
			interaction: Interaction{
				ID:           "int-1",
				Query:        "q",
				Response:     "r",
				AgentType:    AgentRemote,
				ModelUsed:    "claude",
				ContextIDs:   []string{"ctx-1"},
				Outcome:      OutcomeSuccess,
				UserFeedback: FeedbackPositive,
				TokensUsed:   100,
				LatencyMs:    250,
				CreatedAt:    time.Now(),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.interaction.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Interaction.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutcomeTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Outcome
		to   Outcome
		want bool
	}{
		{"unknown to success", OutcomeUnknown, OutcomeSuccess, true},
		{"unknown to partial", OutcomeUnknown, OutcomePartial, true},
		{"unknown to failure", OutcomeUnknown, OutcomeFailure, true},
		{"unknown to unknown", OutcomeUnknown, OutcomeUnknown, false},
		{"success to failure", OutcomeSuccess, OutcomeFailure, false},
		{"failure to success", OutcomeFailure, OutcomeSuccess, false},
		{"partial to success", OutcomePartial, OutcomeSuccess, false},
		{"unknown to invalid", OutcomeUnknown, Outcome("maybe"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestOutcomeTerminal(t *testing.T) {
	terminal := []Outcome{OutcomeSuccess, OutcomePartial, OutcomeFailure}
	for _, o := range terminal {
		if !o.IsTerminal() {
			t.Errorf("outcome %v should be terminal", o)
		}
	}
	if OutcomeUnknown.IsTerminal() {
		t.Error("unknown outcome should not be terminal")
	}
}

func TestFeedbackValid(t *testing.T) {
	for _, f := range []Feedback{FeedbackNegative, FeedbackNeutral, FeedbackPositive} {
		if !f.Valid() {
			t.Errorf("feedback %d should be valid", f)
		}
	}
	for _, f := range []Feedback{-2, 2, 10} {
		if f.Valid() {
			t.Errorf("feedback %d should be invalid", f)
		}
	}
}

func TestAgentTypeValid(t *testing.T) {
	if !AgentLocal.Valid() || !AgentRemote.Valid() {
		t.Error("local and remote agent types should be valid")
	}
	if AgentType("cloud").Valid() || AgentType("").Valid() {
		t.Error("unknown agent types should be invalid")
	}
}
