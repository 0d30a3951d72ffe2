// Rhea is a budget-aware LLM routing and conversation context engine.
//
// It selects (provider, model) pairs per request under configurable spend
// caps, degrading through a cascade of cheaper and free models rather than
// failing, and maintains token-bounded conversation windows with archival
// summarization.
//
// Usage:
//
//	# Show the routing decision for a task
//	rhea route --task code --component ergon --input "refactor this"
//
//	# Set a daily spend cap across all providers
//	rhea budget set-limit --period daily --amount 5.0 --enforcement enforce
//
//	# Show current usage grouped by provider
//	rhea usage summary --period daily --group-by provider
//
//	# List conversation contexts
//	rhea contexts list
//
//	# Show version information
//	rhea version
package main

func main() {
	Execute()
}
