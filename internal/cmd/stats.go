package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/relay/internal/models"
)

// NewStatsCommand creates the 'relay stats' command
func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show interaction and learning statistics",
		Long: `Display aggregate statistics for the project: interaction counts by
outcome and backend, value score averages, stored context items, and
extracted patterns.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	return cmd
}

// runStats executes the stats command
func runStats(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	stats, err := a.tracker.Stats(ctx)
	if err != nil {
		return fmt.Errorf("interaction stats: %w", err)
	}
	contextCount, err := a.contexts.Count(ctx)
	if err != nil {
		return fmt.Errorf("context stats: %w", err)
	}
	patternCount, err := a.patterns.Count(ctx)
	if err != nil {
		return fmt.Errorf("pattern stats: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(output, "\n=== Relay Statistics ===\n\n")

	cyan.Fprintf(output, "Interactions:\n")
	fmt.Fprintf(output, "  Total: %d\n", stats.Total)
	fmt.Fprintf(output, "  Success: ")
	green.Fprintf(output, "%d\n", stats.ByOutcome[models.OutcomeSuccess])
	fmt.Fprintf(output, "  Partial: ")
	yellow.Fprintf(output, "%d\n", stats.ByOutcome[models.OutcomePartial])
	fmt.Fprintf(output, "  Failure: ")
	red.Fprintf(output, "%d\n", stats.ByOutcome[models.OutcomeFailure])
	fmt.Fprintf(output, "  Awaiting outcome: %d\n", stats.ByOutcome[models.OutcomeUnknown])

	fmt.Fprintf(output, "\n")
	cyan.Fprintf(output, "Routing:\n")
	fmt.Fprintf(output, "  Served locally: %d\n", stats.ByAgent[models.AgentLocal])
	fmt.Fprintf(output, "  Served remotely: %d\n", stats.ByAgent[models.AgentRemote])
	fmt.Fprintf(output, "  Average latency: %.0f ms\n", stats.AvgLatency)

	fmt.Fprintf(output, "\n")
	cyan.Fprintf(output, "Learning:\n")
	fmt.Fprintf(output, "  Average value score: %.2f\n", stats.AvgScore)
	fmt.Fprintf(output, "  High-value interactions: %d\n", stats.HighValue)
	fmt.Fprintf(output, "  Context items: %d\n", contextCount)
	fmt.Fprintf(output, "  Extracted patterns: %d\n", patternCount)

	fmt.Fprintf(output, "\n")
	return nil
}
