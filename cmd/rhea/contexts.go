package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var contextsFlags struct {
	component       string
	query           string
	includeArchived bool
	limit           int
	target          string
	maxMessages     int
}

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "Manage conversation contexts",
	Long: `Inspect and manage persisted conversation contexts.

Subcommands:
  list    - List contexts, newest first
  show    - Show one context's history
  search  - Search message content across contexts
  merge   - Merge source contexts into a target
  delete  - Delete a context

Examples:
  # List every loaded context
  rhea contexts list

  # List one component's contexts
  rhea contexts list --component ergon

  # Show a context's full history
  rhea contexts show ergon:chat --archived

  # Search across all contexts
  rhea contexts search "deployment rollback"

  # Merge two session contexts into one
  rhea contexts merge --target ergon:merged ergon:s1 ergon:s2

  # Delete a context everywhere
  rhea contexts delete ergon:chat`,
}

var contextsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts, newest first",
	RunE:  runContextsList,
}

var contextsShowCmd = &cobra.Command{
	Use:   "show <context-id>",
	Short: "Show one context's history",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsShow,
}

var contextsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search message content across contexts",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsSearch,
}

var contextsMergeCmd = &cobra.Command{
	Use:   "merge <source-id>...",
	Short: "Merge source contexts into a target",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContextsMerge,
}

var contextsDeleteCmd = &cobra.Command{
	Use:   "delete <context-id>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsDelete,
}

func init() {
	rootCmd.AddCommand(contextsCmd)
	contextsCmd.AddCommand(contextsListCmd, contextsShowCmd, contextsSearchCmd,
		contextsMergeCmd, contextsDeleteCmd)

	contextsListCmd.Flags().StringVar(&contextsFlags.component, "component", "", "component filter")
	contextsShowCmd.Flags().BoolVar(&contextsFlags.includeArchived, "archived", false, "include archived messages")
	contextsShowCmd.Flags().IntVar(&contextsFlags.limit, "limit", 0, "most recent entries to show (0 for all)")
	contextsSearchCmd.Flags().StringVar(&contextsFlags.component, "component", "", "component filter")
	contextsSearchCmd.Flags().IntVar(&contextsFlags.limit, "limit", 10, "maximum results")
	contextsMergeCmd.Flags().StringVar(&contextsFlags.target, "target", "", "target context id (required)")
	contextsMergeCmd.Flags().IntVar(&contextsFlags.maxMessages, "max-messages", 0, "target active message bound (0 for unbounded)")
	_ = contextsMergeCmd.MarkFlagRequired("target")
}

func runContextsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.LoadContexts(ctx); err != nil {
		return err
	}

	list, err := svc.ListContexts(ctx, contextsFlags.component)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No contexts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTEXT\tACTIVE\tARCHIVED\tSUMMARIES\tTOKENS\tUPDATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			c.ID, c.ActiveCount, c.ArchivedCount, c.SummaryCount, c.TokenCount,
			c.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runContextsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	history, err := svc.ContextHistory(ctx, args[0],
		contextsFlags.includeArchived, true, contextsFlags.limit)
	if err != nil {
		return err
	}

	for _, m := range history {
		fmt.Printf("[%s] %s: %s\n",
			m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
	}
	return nil
}

func runContextsSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.LoadContexts(ctx); err != nil {
		return err
	}

	results, err := svc.SearchAllContexts(ctx, args[0],
		contextsFlags.component, contextsFlags.limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for _, r := range results {
		fmt.Printf("%.2f  %s  [%s] %s\n",
			r.Score, r.ContextID, r.Message.Role, r.Message.Content)
	}
	return nil
}

func runContextsMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.LoadContexts(ctx); err != nil {
		return err
	}

	w, err := svc.MergeContexts(ctx, contextsFlags.target, args, contextsFlags.maxMessages)
	if err != nil {
		return err
	}

	fmt.Printf("Merged %d contexts into %s (%d active, %d archived)\n",
		len(args), contextsFlags.target, len(w.Messages()), len(w.ArchivedMessages()))
	return nil
}

func runContextsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.DeleteContext(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
