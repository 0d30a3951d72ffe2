package budget

import (
	"context"
	"time"
)

// Store is the durable repository behind the budget engine. Implementations
// must be safe for concurrent use.
//
// The usage side is append-only: nothing updates or deletes ledger rows
// except PruneUsage, which exists for retention housekeeping. The settings
// side maintains the invariant that at most one row per (period, provider)
// pair is active; superseded rows are deactivated in the same operation that
// inserts their replacement.
type Store interface {
	// AppendUsage adds one record to the ledger and fills in its ID.
	AppendUsage(ctx context.Context, record *UsageRecord) error

	// SumCostSince returns the total ledger cost at or after since,
	// optionally scoped to a provider ("" means all providers).
	SumCostSince(ctx context.Context, since time.Time, provider string) (float64, error)

	// UsageSince returns ledger records at or after since in timestamp
	// order, optionally scoped to a provider ("" means all providers).
	UsageSince(ctx context.Context, since time.Time, provider string) ([]UsageRecord, error)

	// ActiveSetting returns the active setting for (period, provider),
	// or nil when none exists.
	ActiveSetting(ctx context.Context, period Period, provider string) (*Setting, error)

	// ReplaceSetting deactivates any active row for the setting's
	// (period, provider) pair and inserts the setting as the new active
	// row, filling in its ID.
	ReplaceSetting(ctx context.Context, setting *Setting) error

	// UpdateEnforcement changes the enforcement policy on the active row
	// for (period, provider). It reports false when no active row exists.
	UpdateEnforcement(ctx context.Context, period Period, provider string, policy Policy) (bool, error)

	// ActiveSettings returns every active setting.
	ActiveSettings(ctx context.Context) ([]Setting, error)

	// PruneUsage deletes ledger rows older than the cutoff and returns
	// how many were removed. Retention housekeeping only.
	PruneUsage(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
