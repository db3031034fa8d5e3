package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the oracle registry.
type Metrics struct {
	Registered        prometheus.Counter
	ActiveOracles     prometheus.Gauge
	ReputationChanges *prometheus.CounterVec
	AutoDeactivations prometheus.Counter
}

// New registers the registry metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the registry metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registered: f.NewCounter(prometheus.CounterOpts{
			Name: "veritas_oracles_registered_total",
			Help: "Total number of oracle registrations",
		}),
		ActiveOracles: f.NewGauge(prometheus.GaugeOpts{
			Name: "veritas_oracles_active",
			Help: "Number of currently active oracles",
		}),
		ReputationChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_oracle_reputation_changes_total",
			Help: "Reputation adjustments by operation",
		}, []string{"op"}),
		AutoDeactivations: f.NewCounter(prometheus.CounterOpts{
			Name: "veritas_oracle_auto_deactivations_total",
			Help: "Oracles deactivated because reputation reached the floor",
		}),
	}
}

func (m *Metrics) IncRegistered() {
	if m == nil {
		return
	}
	m.Registered.Inc()
}

func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveOracles.Set(float64(n))
}

func (m *Metrics) IncReputationChange(op string) {
	if m == nil {
		return
	}
	m.ReputationChanges.WithLabelValues(op).Inc()
}

func (m *Metrics) IncAutoDeactivation() {
	if m == nil {
		return
	}
	m.AutoDeactivations.Inc()
}
