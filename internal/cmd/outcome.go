package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/relay/internal/models"
)

// NewOutcomeCommand creates the 'relay outcome' command
func NewOutcomeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome <interaction-id>",
		Short: "Report the outcome of a served interaction",
		Long: `Record whether a served response solved the problem. The interaction is
scored immediately; high-value interactions become candidates for pattern
extraction on the next learning pass.

Outcomes are final: reporting a second outcome for the same interaction is
ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: runOutcome,
	}

	cmd.Flags().String("result", "", "outcome: success, partial, or failure (required)")
	cmd.Flags().Int("feedback", 0, "explicit rating: -1 (unhelpful), 0 (none), 1 (helpful)")
	cmd.MarkFlagRequired("result")

	return cmd
}

// runOutcome executes the outcome command
func runOutcome(cmd *cobra.Command, args []string) error {
	id := args[0]
	result, _ := cmd.Flags().GetString("result")
	feedbackVal, _ := cmd.Flags().GetInt("feedback")
	output := cmd.OutOrStdout()

	outcome := models.Outcome(result)
	if !outcome.IsTerminal() {
		return fmt.Errorf("invalid result %q, must be one of: success, partial, failure", result)
	}
	feedback := models.Feedback(feedbackVal)
	if !feedback.Valid() {
		return fmt.Errorf("invalid feedback %d, must be -1, 0, or 1", feedbackVal)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	in, err := a.tracker.UpdateOutcome(cmd.Context(), id, outcome, feedback)
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "interaction %s resolved as %s (score %.2f)\n", in.ID, in.Outcome, in.ValueScore)
	if a.engine.Eligible(in.ValueScore) {
		fmt.Fprintln(output, "eligible for pattern extraction on the next learning pass")
	}

	return nil
}
