package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run one retention cycle now",
	Long: `Run one retention cycle immediately: delete usage ledger records older
than the configured maximum age and flush idle conversation contexts.

The same cycle runs automatically on the configured cron schedule when
retention is enabled.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	deleted, err := svc.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d usage records\n", deleted)
	return nil
}
