package pricing

import (
	"sort"
	"sync"
)

// Tier classifies a model by combined cost per 1K tokens.
type Tier string

const (
	TierFree   Tier = "free"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tier thresholds on combined (input+output) USD per 1K tokens.
const (
	lowTierCeiling    = 0.01
	mediumTierCeiling = 0.05
)

// Price holds per-token USD rates for one model.
type Price struct {
	// InputCostPerToken is the USD cost per prompt token.
	InputCostPerToken float64 `yaml:"input_cost_per_token" json:"input_cost_per_token"`

	// OutputCostPerToken is the USD cost per completion token.
	OutputCostPerToken float64 `yaml:"output_cost_per_token" json:"output_cost_per_token"`
}

// PerToken returns the combined input+output cost per token, the ordering
// key used for cheaper-alternative ranking.
func (p Price) PerToken() float64 {
	return p.InputCostPerToken + p.OutputCostPerToken
}

// Entry is one (provider, model) row of the catalog.
type Entry struct {
	Provider string
	Model    string
	Price    Price
}

// Tier returns the entry's derived cost tier.
func (e Entry) Tier() Tier {
	perThousand := e.Price.PerToken() * 1000
	switch {
	case perThousand == 0:
		return TierFree
	case perThousand < lowTierCeiling:
		return TierLow
	case perThousand < mediumTierCeiling:
		return TierMedium
	default:
		return TierHigh
	}
}

// Catalog is the static, hot-reloadable model price table.
type Catalog struct {
	prices map[string]map[string]Price

	mu sync.RWMutex
}

// NewCatalog creates a catalog from provider → model → price tables.
// A nil table yields an empty catalog (every pair free, nothing to cascade to).
func NewCatalog(prices map[string]map[string]Price) *Catalog {
	if prices == nil {
		prices = map[string]map[string]Price{}
	}
	return &Catalog{prices: prices}
}

// Lookup returns the price for (provider, model). Unknown pairs are free.
func (c *Catalog) Lookup(provider, model string) Price {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if models, ok := c.prices[provider]; ok {
		if price, ok := models[model]; ok {
			return price
		}
	}
	return Price{}
}

// Contains reports whether (provider, model) has an explicit catalog entry.
func (c *Catalog) Contains(provider, model string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models, ok := c.prices[provider]
	if !ok {
		return false
	}
	_, ok = models[model]
	return ok
}

// Entries returns every catalog row in deterministic (provider, model) order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.prices))
	for provider, models := range c.prices {
		for model, price := range models {
			entries = append(entries, Entry{Provider: provider, Model: model, Price: price})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].Model < entries[j].Model
	})
	return entries
}

// ByTier returns the catalog grouped by derived tier.
func (c *Catalog) ByTier() map[Tier][]Entry {
	tiers := map[Tier][]Entry{
		TierFree:   {},
		TierLow:    {},
		TierMedium: {},
		TierHigh:   {},
	}
	for _, e := range c.Entries() {
		tier := e.Tier()
		tiers[tier] = append(tiers[tier], e)
	}
	return tiers
}

// CheaperThan returns entries with strictly lower per-token cost than limit,
// in deterministic order.
func (c *Catalog) CheaperThan(limit float64) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Price.PerToken() < limit {
			out = append(out, e)
		}
	}
	return out
}

// Free returns all zero-cost entries.
func (c *Catalog) Free() []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Price.PerToken() == 0 {
			out = append(out, e)
		}
	}
	return out
}

// Cheapest returns the globally lowest-cost entry. The second return is
// false only for an empty catalog.
func (c *Catalog) Cheapest() (Entry, bool) {
	entries := c.Entries()
	if len(entries) == 0 {
		return Entry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.Price.PerToken() < best.Price.PerToken() {
			best = e
		}
	}
	return best, true
}

// Empty reports whether the catalog has no entries at all.
func (c *Catalog) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, models := range c.prices {
		if len(models) > 0 {
			return false
		}
	}
	return true
}

// UpdatePrices replaces the price table. Safe for concurrent use; supports
// config hot reload.
func (c *Catalog) UpdatePrices(prices map[string]map[string]Price) {
	if prices == nil {
		prices = map[string]map[string]Price{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = prices
}
