// Package budget tracks LLM spend and enforces tiered budget limits.
//
// # Overview
//
// Spending is accounted in an append-only usage ledger and compared against
// calendar-period limits (daily, weekly, monthly), each carrying its own
// enforcement policy:
//
//   - ignore:  track spend, take no action
//   - warn:    allow the request, attach a warning
//   - enforce: reject the request at check time
//
// Budgets are advisory. Check and Record are separate operations with no
// transactional coupling, so concurrent requests can both pass a check
// against stale usage and transiently overshoot a limit. Recording never
// fails because of budget state; enforcement happens only at check time,
// never retroactively.
//
// # Periods
//
// Periods are calendar-aligned, not rolling: daily starts at local midnight,
// weekly at the most recent Monday, monthly on the first of the month.
//
// # Settings
//
// At most one budget setting is active per (period, provider) pair.
// Replacing a limit deactivates the prior row rather than deleting it,
// preserving the audit history.
package budget
