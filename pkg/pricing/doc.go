// Package pricing maintains the per-model cost catalog.
//
// # Overview
//
// The catalog maps (provider, model) pairs to per-token input/output rates
// and derives a cost tier for each entry. Pairs absent from the catalog are
// treated as free: local and simulated providers never carry price entries,
// and an unpriced request must never be blocked by budgets.
//
// # Tiers
//
// Tiers are derived from the combined input+output cost per 1K tokens:
//
//   - free:   0
//   - low:    < $0.01
//   - medium: < $0.05
//   - high:   everything above
//
// The router uses tier and per-token cost ordering to cascade toward cheaper
// alternatives when budgets reject the preferred model.
//
// # Thread Safety
//
// The catalog is safe for concurrent reads and supports hot-reload of the
// price table via UpdatePrices.
package pricing
