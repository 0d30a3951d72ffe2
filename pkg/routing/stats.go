package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks routing decisions with lock-free counters.
type Stats struct {
	// totalRequests is the total number of routing queries processed.
	totalRequests atomic.Int64

	// requestsPerProvider tracks decisions per selected provider.
	requestsPerProvider sync.Map // map[string]*atomic.Int64

	// downgrades counts cheaper-alternative selections.
	downgrades atomic.Int64

	// freeFallbacks counts free-tier selections.
	freeFallbacks atomic.Int64

	// emergencies counts cheapest-overall and default-last-resort
	// selections.
	emergencies atomic.Int64

	// mu protects lastResetTime.
	mu            sync.RWMutex
	lastResetTime time.Time
}

// NewStats creates a routing statistics tracker.
func NewStats() *Stats {
	return &Stats{lastResetTime: time.Now()}
}

// IncrementTotal increments the total query counter.
func (s *Stats) IncrementTotal() {
	s.totalRequests.Add(1)
}

// IncrementProvider increments the counter for a selected provider.
func (s *Stats) IncrementProvider(provider string) {
	val, _ := s.requestsPerProvider.LoadOrStore(provider, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementDowngrade increments the cheaper-alternative counter.
func (s *Stats) IncrementDowngrade() {
	s.downgrades.Add(1)
}

// IncrementFreeFallback increments the free-tier counter.
func (s *Stats) IncrementFreeFallback() {
	s.freeFallbacks.Add(1)
}

// IncrementEmergency increments the emergency fallback counter.
func (s *Stats) IncrementEmergency() {
	s.emergencies.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalRequests       int64            `json:"total_requests"`
	RequestsPerProvider map[string]int64 `json:"requests_per_provider"`
	Downgrades          int64            `json:"downgrades"`
	FreeFallbacks       int64            `json:"free_fallbacks"`
	Emergencies         int64            `json:"emergencies"`
	LastResetTime       time.Time        `json:"last_reset_time"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	perProvider := make(map[string]int64)
	s.requestsPerProvider.Range(func(key, value any) bool {
		perProvider[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	s.mu.RLock()
	reset := s.lastResetTime
	s.mu.RUnlock()

	return Snapshot{
		TotalRequests:       s.totalRequests.Load(),
		RequestsPerProvider: perProvider,
		Downgrades:          s.downgrades.Load(),
		FreeFallbacks:       s.freeFallbacks.Load(),
		Emergencies:         s.emergencies.Load(),
		LastResetTime:       reset,
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.totalRequests.Store(0)
	s.downgrades.Store(0)
	s.freeFallbacks.Store(0)
	s.emergencies.Store(0)
	s.requestsPerProvider.Range(func(key, _ any) bool {
		s.requestsPerProvider.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
