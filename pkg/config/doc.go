// Package config loads, validates, and hot-reloads Rhea's configuration.
//
// Configuration is a single YAML document covering storage, model pricing,
// token estimation ratios, task routes, budget seeds, conversation window
// defaults, retention, and telemetry. LoadConfig applies defaults and validates;
// Watcher re-loads the file on change and hands the new configuration to a
// callback.
package config
