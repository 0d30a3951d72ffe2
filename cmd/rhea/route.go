package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rhea-hq/rhea/pkg/service"
)

var routeFlags struct {
	input     string
	task      string
	component string
	provider  string
	model     string
	complete  bool
	contextID string
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route a request through the budget-aware cascade",
	Long: `Resolve the (provider, model) pair for a request, applying the budget
fallback cascade, and print the decision as JSON.

With --complete the request is also sent to the configured LLM client and
the reply is printed. With --context the exchange is recorded into the
named conversation context.

Examples:
  # Show the routing decision for a code task
  rhea route --task code --input "refactor this function"

  # Component-scoped routing
  rhea route --task planning --component ergon --input "plan the sprint"

  # Force a specific pair (the budget cascade still applies)
  rhea route --provider anthropic --model claude-3-opus-20240229 --input "hi"

  # Complete within a conversation context
  rhea route --complete --context ergon:chat --task chat --input "hello"`,
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVarP(&routeFlags.input, "input", "i", "", "input text (required)")
	routeCmd.Flags().StringVarP(&routeFlags.task, "task", "t", "default", "task type (code, chat, planning, reasoning)")
	routeCmd.Flags().StringVar(&routeFlags.component, "component", "", "calling component")
	routeCmd.Flags().StringVar(&routeFlags.provider, "provider", "", "override provider (requires --model)")
	routeCmd.Flags().StringVar(&routeFlags.model, "model", "", "override model (requires --provider)")
	routeCmd.Flags().BoolVar(&routeFlags.complete, "complete", false, "send the request and print the reply")
	routeCmd.Flags().StringVar(&routeFlags.contextID, "context", "", "conversation context id (implies --complete)")
	_ = routeCmd.MarkFlagRequired("input")
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if routeFlags.contextID != "" {
		result, err := svc.RouteChatRequest(ctx, service.ChatRequest{
			ContextID: routeFlags.contextID,
			Message:   routeFlags.input,
			TaskType:  routeFlags.task,
			Component: routeFlags.component,
			Provider:  routeFlags.provider,
			Model:     routeFlags.model,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	if routeFlags.complete {
		result, err := svc.RouteAndComplete(ctx, service.RouteRequest{
			InputText: routeFlags.input,
			TaskType:  routeFlags.task,
			Component: routeFlags.component,
			Provider:  routeFlags.provider,
			Model:     routeFlags.model,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	decision := svc.Route(ctx, service.RouteRequest{
		InputText: routeFlags.input,
		TaskType:  routeFlags.task,
		Component: routeFlags.component,
		Provider:  routeFlags.provider,
		Model:     routeFlags.model,
	})
	return printJSON(decision)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
