package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var usageFlags struct {
	period   string
	groupBy  string
	provider string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage ledger",
	Long: `Inspect recorded LLM spend.

Subcommands:
  summary  - Aggregate usage for a period, grouped by a dimension
  current  - Current spend for a period

Examples:
  # Daily spend grouped by provider
  rhea usage summary --period daily --group-by provider

  # Monthly spend grouped by calling component
  rhea usage summary --period monthly --group-by component

  # Current daily spend for one provider
  rhea usage current --period daily --provider anthropic`,
}

var usageSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate usage for a period",
	RunE:  runUsageSummary,
}

var usageCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Current spend for a period",
	RunE:  runUsageCurrent,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageSummaryCmd, usageCurrentCmd)

	usageSummaryCmd.Flags().StringVar(&usageFlags.period, "period", "daily", "budget period (daily, weekly, monthly)")
	usageSummaryCmd.Flags().StringVar(&usageFlags.groupBy, "group-by", "provider", "grouping (provider, model, component, task_type)")
	usageCurrentCmd.Flags().StringVar(&usageFlags.period, "period", "daily", "budget period (daily, weekly, monthly)")
	usageCurrentCmd.Flags().StringVar(&usageFlags.provider, "provider", "", "provider filter (empty for all)")
}

func runUsageSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	summary, err := svc.UsageSummary(ctx, usageFlags.period, usageFlags.groupBy)
	if err != nil {
		return err
	}

	fmt.Printf("Period: %s   Requests: %d   Total: $%.4f   Tokens: %d in / %d out\n\n",
		summary.Period, summary.Count, summary.TotalCost,
		summary.TotalInputTokens, summary.TotalOutputTokens)

	if len(summary.Groups) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	keys := make([]string, 0, len(summary.Groups))
	for k := range summary.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCOST\tREQUESTS\tINPUT TOKENS\tOUTPUT TOKENS\n", usageFlags.groupBy)
	for _, k := range keys {
		g := summary.Groups[k]
		fmt.Fprintf(w, "%s\t$%.4f\t%d\t%d\t%d\n",
			k, g.Cost, g.Count, g.InputTokens, g.OutputTokens)
	}
	return w.Flush()
}

func runUsageCurrent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	usage, err := svc.CurrentUsage(ctx, usageFlags.period, usageFlags.provider)
	if err != nil {
		return err
	}

	scope := usageFlags.provider
	if scope == "" {
		scope = "all providers"
	}
	fmt.Printf("Current %s spend (%s): $%.4f\n", usageFlags.period, scope, usage)
	return nil
}
