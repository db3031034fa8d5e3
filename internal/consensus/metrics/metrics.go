package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for consensus queries.
type Metrics struct {
	QueriesCreated    *prometheus.CounterVec
	VotesAccepted     *prometheus.CounterVec
	VotesRejected     *prometheus.CounterVec
	QueriesResolved   *prometheus.CounterVec
	ResolutionLatency prometheus.Histogram
	ThresholdChanges  *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consensus_queries_created_total",
			Help: "Consensus queries created, by policy",
		}, []string{"policy"}),
		VotesAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consensus_votes_accepted_total",
			Help: "Votes recorded, by policy and side",
		}, []string{"policy", "side"}),
		VotesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consensus_votes_rejected_total",
			Help: "Votes refused, by error kind",
		}, []string{"kind"}),
		QueriesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consensus_queries_resolved_total",
			Help: "Queries resolved, by policy and path (threshold or forced)",
		}, []string{"policy", "path"}),
		ResolutionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_consensus_resolution_seconds",
			Help:    "Time from query creation to resolution",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}),
		ThresholdChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consensus_threshold_changes_total",
			Help: "Threshold updates, by policy",
		}, []string{"policy"}),
	}
}

func (m *Metrics) IncCreated(policy string) {
	if m == nil {
		return
	}
	m.QueriesCreated.WithLabelValues(policy).Inc()
}

func (m *Metrics) IncVote(policy string, yes bool) {
	if m == nil {
		return
	}
	side := "no"
	if yes {
		side = "yes"
	}
	m.VotesAccepted.WithLabelValues(policy, side).Inc()
}

func (m *Metrics) IncRejected(kind string) {
	if m == nil {
		return
	}
	m.VotesRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveResolved(policy, path string, seconds float64) {
	if m == nil {
		return
	}
	m.QueriesResolved.WithLabelValues(policy, path).Inc()
	m.ResolutionLatency.Observe(seconds)
}

func (m *Metrics) IncThresholdChange(policy string) {
	if m == nil {
		return
	}
	m.ThresholdChanges.WithLabelValues(policy).Inc()
}
