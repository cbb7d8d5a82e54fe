// Package cmd implements the relay CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for relay
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Hybrid query coordination with continuous learning",
		Long: `Relay serves queries through a local-first model pipeline: each query is
augmented with relevant local context, routed to a local model when it can
handle it confidently, and escalated to a remote model otherwise.

Every served interaction is tracked. Reported outcomes are scored, and a
learning pass extracts reusable patterns from the highest-value ones.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("dir", "C", ".", "project directory holding the .relay configuration")

	cmd.AddCommand(NewAskCommand())
	cmd.AddCommand(NewOutcomeCommand())
	cmd.AddCommand(NewLearnCommand())
	cmd.AddCommand(NewStatsCommand())
	cmd.AddCommand(NewContextCommand())

	return cmd
}
