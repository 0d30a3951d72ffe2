package routing

// Options carries per-route completion parameters.
type Options struct {
	// Temperature is the sampling temperature for the route.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens caps the completion length for the route.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// Fallback is the static backup pair a route names for transport failures.
// It is distinct from the budget cascade: the cascade reacts to spend caps,
// the fallback pair reacts to the chosen backend failing outright.
type Fallback struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

// TaskRoute is one resolved routing entry: the preferred pair, its
// completion options, and a static fallback pair.
type TaskRoute struct {
	Provider string   `json:"provider" yaml:"provider"`
	Model    string   `json:"model" yaml:"model"`
	Options  Options  `json:"options" yaml:"options"`
	Fallback Fallback `json:"fallback" yaml:"fallback"`
}

// Request describes one routing query.
type Request struct {
	// InputText is the prospective prompt, used for cost estimation.
	InputText string

	// TaskType classifies the workload (code, chat, planning, ...).
	TaskType string

	// Component is the calling subsystem.
	Component string

	// Provider and Model, when both set, override the route table's
	// preferred pair. The budget cascade still applies.
	Provider string
	Model    string
}

// Decision is the outcome of one routing query.
type Decision struct {
	// Provider and Model are the selected pair.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Options are the resolved route's completion parameters.
	Options Options `json:"options"`

	// Fallback is the resolved route's static backup pair.
	Fallback Fallback `json:"fallback"`

	// Warnings collects budget warnings and downgrade notices.
	Warnings []string `json:"warnings,omitempty"`

	// Downgraded reports whether the cascade moved off the preferred pair.
	Downgraded bool `json:"downgraded"`
}
