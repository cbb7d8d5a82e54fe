package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/relay/internal/models"
)

// NewContextCommand creates the 'relay context' command group
func NewContextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage the local context store",
	}

	cmd.AddCommand(NewContextAddCommand())
	cmd.AddCommand(NewContextSearchCommand())

	return cmd
}

// NewContextAddCommand creates the 'relay context add' command
func NewContextAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a context item to the knowledge base",
		Long: `Store a snippet, known solution, or documented practice so future
queries can be augmented with it.`,
		Args: cobra.ExactArgs(1),
		RunE: runContextAdd,
	}

	cmd.Flags().String("type", "note", "content type: note, snippet, or solution")
	cmd.Flags().StringSlice("tag", nil, "tag for retrieval (repeatable)")

	return cmd
}

// runContextAdd executes the context add command
func runContextAdd(cmd *cobra.Command, args []string) error {
	content := args[0]
	contentType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	output := cmd.OutOrStdout()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	item := &models.ContextItem{
		Content:     content,
		ContentType: contentType,
		Tags:        tags,
	}
	if err := a.contexts.Add(cmd.Context(), item); err != nil {
		return err
	}

	fmt.Fprintf(output, "added context item %s\n", item.ID)
	return nil
}

// NewContextSearchCommand creates the 'relay context search' command
func NewContextSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the context store",
		Args:  cobra.ExactArgs(1),
		RunE:  runContextSearch,
	}

	cmd.Flags().Int("limit", 5, "maximum number of results")
	cmd.Flags().String("type", "", "restrict results to one content type")

	return cmd
}

// runContextSearch executes the context search command
func runContextSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	limit, _ := cmd.Flags().GetInt("limit")
	contentType, _ := cmd.Flags().GetString("type")
	output := cmd.OutOrStdout()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.contexts.Search(cmd.Context(), query, limit, contentType)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(output, "no matching context items")
		return nil
	}

	for _, item := range items {
		fmt.Fprintf(output, "%s  [%s]  used %d times, %.0f%% success\n",
			item.ID, item.ContentType, item.UsageCount, item.SuccessRate*100)
		fmt.Fprintf(output, "  %s\n", item.Content)
	}
	return nil
}
