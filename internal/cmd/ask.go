package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/relay/internal/models"
)

// NewAskCommand creates the 'relay ask' command
func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Serve a query through the coordination pipeline",
		Long: `Augment the query with relevant local context, route it to the local
model (escalating to the remote model on failure or low confidence), and
track the interaction.

The interaction id printed at the end is how you report the outcome later:

  relay outcome <id> --result success`,
		Args: cobra.ExactArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().String("model", "", "override the backend's default model")

	return cmd
}

// runAsk executes the ask command
func runAsk(cmd *cobra.Command, args []string) error {
	query := args[0]
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	modelHint, _ := cmd.Flags().GetString("model")
	output := cmd.OutOrStdout()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	aug, err := a.augmenter.Augment(ctx, query)
	if err != nil {
		return fmt.Errorf("augment query: %w", err)
	}

	dec, err := a.router.Route(ctx, aug.Prompt, modelHint)
	if err != nil {
		return err
	}

	in := &models.Interaction{
		Query:      query,
		Response:   dec.Completion.Text,
		AgentType:  dec.AgentType,
		ModelUsed:  dec.Completion.Model,
		ContextIDs: aug.ContextIDs,
		TokensUsed: dec.Completion.TokensUsed,
		LatencyMs:  dec.Completion.LatencyMs,
	}

	id, err := a.tracker.Track(ctx, in)
	if err != nil {
		return fmt.Errorf("track interaction: %w", err)
	}

	fmt.Fprintln(output, dec.Completion.Text)
	fmt.Fprintln(output)

	dim := color.New(color.Faint)
	dim.Fprintf(output, "served by %s (%s)", dec.AgentType, dec.Completion.Model)
	if dec.Escalated {
		dim.Fprintf(output, ", escalated")
	}
	if len(aug.ContextIDs) > 0 {
		dim.Fprintf(output, ", %d context items", len(aug.ContextIDs))
	}
	dim.Fprintln(output)
	dim.Fprintf(output, "interaction: %s\n", id)

	return nil
}
