package budget

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory slices. It is the default for
// tests and storage-less deployments; all data is lost when the process
// exits.
//
// MemoryStore is thread-safe using sync.RWMutex.
type MemoryStore struct {
	usage    []UsageRecord
	settings []Setting
	nextID   int64

	mu sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// AppendUsage adds one ledger record.
func (m *MemoryStore) AppendUsage(ctx context.Context, record *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	m.nextID++
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	m.usage = append(m.usage, *record)
	return nil
}

// SumCostSince totals ledger cost at or after since, optionally scoped.
func (m *MemoryStore) SumCostSince(ctx context.Context, since time.Time, provider string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, r := range m.usage {
		if r.Timestamp.Before(since) {
			continue
		}
		if provider != "" && r.Provider != provider {
			continue
		}
		total += r.Cost
	}
	return total, nil
}

// UsageSince returns matching ledger records in timestamp order.
func (m *MemoryStore) UsageSince(ctx context.Context, since time.Time, provider string) ([]UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UsageRecord
	for _, r := range m.usage {
		if r.Timestamp.Before(since) {
			continue
		}
		if provider != "" && r.Provider != provider {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ActiveSetting returns the active row for (period, provider), or nil.
func (m *MemoryStore) ActiveSetting(ctx context.Context, period Period, provider string) (*Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.settings {
		s := m.settings[i]
		if s.Active && s.Period == period && s.Provider == provider {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

// ReplaceSetting deactivates the current active row and inserts setting.
func (m *MemoryStore) ReplaceSetting(ctx context.Context, setting *Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.settings {
		if m.settings[i].Active && m.settings[i].Period == setting.Period && m.settings[i].Provider == setting.Provider {
			m.settings[i].Active = false
		}
	}

	setting.ID = m.nextID
	m.nextID++
	setting.Active = true
	if setting.StartDate.IsZero() {
		setting.StartDate = time.Now()
	}
	m.settings = append(m.settings, *setting)
	return nil
}

// UpdateEnforcement changes the policy on the active row, if any.
func (m *MemoryStore) UpdateEnforcement(ctx context.Context, period Period, provider string, policy Policy) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.settings {
		if m.settings[i].Active && m.settings[i].Period == period && m.settings[i].Provider == provider {
			m.settings[i].Enforcement = policy
			return true, nil
		}
	}
	return false, nil
}

// ActiveSettings returns every active row.
func (m *MemoryStore) ActiveSettings(ctx context.Context) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Setting
	for _, s := range m.settings {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

// SettingsHistory returns every row (active and superseded) for a pair, in
// insertion order. Used by tests to verify deactivation preserves history.
func (m *MemoryStore) SettingsHistory(ctx context.Context, period Period, provider string) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Setting
	for _, s := range m.settings {
		if s.Period == period && s.Provider == provider {
			out = append(out, s)
		}
	}
	return out, nil
}

// PruneUsage removes ledger rows older than the cutoff.
func (m *MemoryStore) PruneUsage(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.usage[:0]
	removed := 0
	for _, r := range m.usage {
		if r.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.usage = kept
	return removed, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
