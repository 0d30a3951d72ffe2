package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var budgetFlags struct {
	period      string
	provider    string
	amount      float64
	enforcement string
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spend caps",
	Long: `Manage per-period spend caps and their enforcement policies.

A cap applies to a (period, provider) pair; provider "all" covers every
provider. Setting a new cap supersedes the active one for the pair; the
superseded row is kept for history.

Subcommands:
  set-limit        - Install a spend cap
  set-enforcement  - Change the enforcement policy of the active cap
  settings         - List active caps

Examples:
  # Cap daily spend across all providers, warn when exceeded
  rhea budget set-limit --period daily --amount 5.0 --enforcement warn

  # Hard cap for one provider
  rhea budget set-limit --period monthly --provider anthropic --amount 100 --enforcement enforce

  # Stop enforcing without touching the cap amount
  rhea budget set-enforcement --period daily --enforcement ignore`,
}

var budgetSetLimitCmd = &cobra.Command{
	Use:   "set-limit",
	Short: "Install a spend cap",
	RunE:  runBudgetSetLimit,
}

var budgetSetEnforcementCmd = &cobra.Command{
	Use:   "set-enforcement",
	Short: "Change the enforcement policy of the active cap",
	RunE:  runBudgetSetEnforcement,
}

var budgetSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "List active caps",
	RunE:  runBudgetSettings,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetLimitCmd, budgetSetEnforcementCmd, budgetSettingsCmd)

	for _, cmd := range []*cobra.Command{budgetSetLimitCmd, budgetSetEnforcementCmd} {
		cmd.Flags().StringVar(&budgetFlags.period, "period", "daily", "budget period (daily, weekly, monthly)")
		cmd.Flags().StringVar(&budgetFlags.provider, "provider", "all", "provider scope")
		cmd.Flags().StringVar(&budgetFlags.enforcement, "enforcement", "warn", "policy (ignore, warn, enforce)")
	}
	budgetSetLimitCmd.Flags().Float64Var(&budgetFlags.amount, "amount", 0, "cap amount in USD (required)")
	_ = budgetSetLimitCmd.MarkFlagRequired("amount")
}

func runBudgetSetLimit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	setting, err := svc.SetBudgetLimit(ctx, budgetFlags.period, budgetFlags.provider,
		budgetFlags.amount, budgetFlags.enforcement)
	if err != nil {
		return err
	}

	fmt.Printf("Set %s cap for %s: $%.2f (%s)\n",
		setting.Period, setting.Provider, setting.LimitAmount, setting.Enforcement)
	return nil
}

func runBudgetSetEnforcement(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.SetEnforcementPolicy(ctx, budgetFlags.period, budgetFlags.provider,
		budgetFlags.enforcement); err != nil {
		return err
	}

	fmt.Printf("Set %s enforcement for %s: %s\n",
		budgetFlags.period, budgetFlags.provider, budgetFlags.enforcement)
	return nil
}

func runBudgetSettings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.BudgetSettings(ctx)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		fmt.Println("No budget caps configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tPROVIDER\tLIMIT\tENFORCEMENT\tSINCE")
	for _, s := range settings {
		fmt.Fprintf(w, "%s\t%s\t$%.2f\t%s\t%s\n",
			s.Period, s.Provider, s.LimitAmount, s.Enforcement,
			s.StartDate.Format(time.RFC3339))
	}
	return w.Flush()
}
