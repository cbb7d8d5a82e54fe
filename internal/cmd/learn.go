package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewLearnCommand creates the 'relay learn' command
func NewLearnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Run a learning pass over recorded telemetry",
		Long: `Replay telemetry events from the last checkpoint and extract patterns from
high-value outcomes. A single pass runs by default; --watch keeps the
daemon running on the configured interval.

Run exactly one learn process per project: the pass owns the checkpoint
file.`,
		Args: cobra.NoArgs,
		RunE: runLearn,
	}

	cmd.Flags().Bool("watch", false, "keep running, replaying new telemetry on the configured interval")

	return cmd
}

// runLearn executes the learn command
func runLearn(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	output := cmd.OutOrStdout()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.Learning.Enabled {
		return fmt.Errorf("learning is disabled in configuration (learning.enabled)")
	}

	ctx := cmd.Context()

	if !watch {
		if err := a.daemon.RunOnce(ctx); err != nil {
			return err
		}
		fmt.Fprintln(output, "learning pass complete")
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(output, "watching telemetry every %s, press Ctrl-C to stop\n", a.cfg.Learning.Interval)
	if err := a.daemon.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(output, "stopped")
	return nil
}
