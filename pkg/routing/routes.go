package routing

import "fmt"

// Table resolves (component, task type) pairs to routes. Keys follow the
// precedence component_task > component > task > "default"; resolution is
// a plain map walk because shapes are fixed at load time.
type Table struct {
	routes map[string]TaskRoute
}

// defaultKey is the route every table falls back to.
const defaultKey = "default"

// NewTable builds a route table from configured entries. Entries with an
// empty provider or model are rejected. A missing "default" entry is filled
// from DefaultRoutes so resolution is always total.
func NewTable(routes map[string]TaskRoute) (*Table, error) {
	resolved := make(map[string]TaskRoute, len(routes)+1)
	for key, route := range routes {
		if route.Provider == "" || route.Model == "" {
			return nil, fmt.Errorf("route %q: %w: provider and model are required", key, ErrNoRouteConfigured)
		}
		resolved[key] = route
	}
	if _, ok := resolved[defaultKey]; !ok {
		resolved[defaultKey] = DefaultRoutes()[defaultKey]
	}
	return &Table{routes: resolved}, nil
}

// NewDefaultTable builds a table from the built-in routes.
func NewDefaultTable() *Table {
	return &Table{routes: DefaultRoutes()}
}

// Resolve returns the route for (component, taskType), walking the
// precedence order down to the default route. Resolve never fails.
func (t *Table) Resolve(component, taskType string) TaskRoute {
	if taskType == "" {
		taskType = defaultKey
	}
	if component != "" {
		if route, ok := t.routes[component+"_"+taskType]; ok {
			return route
		}
		if route, ok := t.routes[component]; ok {
			return route
		}
	}
	if route, ok := t.routes[taskType]; ok {
		return route
	}
	return t.routes[defaultKey]
}

// DefaultRoutes returns the built-in route table.
func DefaultRoutes() map[string]TaskRoute {
	return map[string]TaskRoute{
		"code": {
			Provider: "anthropic",
			Model:    "claude-3-opus-20240229",
			Options:  Options{Temperature: 0.2, MaxTokens: 4000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-4-turbo"},
		},
		"planning": {
			Provider: "anthropic",
			Model:    "claude-3-sonnet-20240229",
			Options:  Options{Temperature: 0.7, MaxTokens: 4000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-4o"},
		},
		"reasoning": {
			Provider: "anthropic",
			Model:    "claude-3-sonnet-20240229",
			Options:  Options{Temperature: 0.5, MaxTokens: 4000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-4o"},
		},
		"chat": {
			Provider: "anthropic",
			Model:    "claude-3-haiku-20240307",
			Options:  Options{Temperature: 0.8, MaxTokens: 2000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-3.5-turbo"},
		},
		defaultKey: {
			Provider: "anthropic",
			Model:    "claude-3-sonnet-20240229",
			Options:  Options{Temperature: 0.7, MaxTokens: 4000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-4o"},
		},
	}
}
