package budget

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the budget engine.
type Metrics struct {
	ChecksAllowed  *prometheus.CounterVec
	ChecksRejected *prometheus.CounterVec
	CheckWarnings  *prometheus.CounterVec
	UsageRecorded  *prometheus.CounterVec
	CostRecorded   *prometheus.CounterVec
	TokensRecorded *prometheus.CounterVec
}

// NewMetrics creates and registers budget metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChecksAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_checks_allowed_total",
				Help: "Total budget checks that allowed the request",
			},
			[]string{"provider"},
		),
		ChecksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_checks_rejected_total",
				Help: "Total budget checks rejected under an enforce policy",
			},
			[]string{"period", "provider"},
		),
		CheckWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_check_warnings_total",
				Help: "Total warn-policy budget warnings emitted",
			},
			[]string{"period", "provider"},
		),
		UsageRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_usage_records_total",
				Help: "Total usage ledger records appended",
			},
			[]string{"provider", "model"},
		),
		CostRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_cost_usd_total",
				Help: "Total recorded cost in USD",
			},
			[]string{"provider", "model"},
		),
		TokensRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rhea_budget_tokens_total",
				Help: "Total recorded tokens by direction",
			},
			[]string{"provider", "model", "direction"},
		),
	}
}
