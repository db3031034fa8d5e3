package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance lists.
type Metrics struct {
	EntriesAdded       *prometheus.CounterVec
	EntriesRemoved     *prometheus.CounterVec
	EmergencyListings  prometheus.Counter
	Lookups            *prometheus.CounterVec
	AttestationsLogged *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_list_entries_added_total",
			Help: "List entries written, by list and source (admin, consensus, emergency)",
		}, []string{"list", "source"}),
		EntriesRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_list_entries_removed_total",
			Help: "List entries deactivated, by list and cause",
		}, []string{"list", "cause"}),
		EmergencyListings: f.NewCounter(prometheus.CounterOpts{
			Name: "veritas_emergency_listings_total",
			Help: "Blacklist entries created through the emergency path",
		}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_list_lookups_total",
			Help: "Membership checks, by list and outcome",
		}, []string{"list", "listed"}),
		AttestationsLogged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_attestations_logged_total",
			Help: "Attestations appended to the log, by validity",
		}, []string{"valid"}),
	}
}

func (m *Metrics) IncAdded(list, source string) {
	if m == nil {
		return
	}
	m.EntriesAdded.WithLabelValues(list, source).Inc()
}

func (m *Metrics) IncRemoved(list, cause string) {
	if m == nil {
		return
	}
	m.EntriesRemoved.WithLabelValues(list, cause).Inc()
}

func (m *Metrics) IncEmergency() {
	if m == nil {
		return
	}
	m.EmergencyListings.Inc()
}

func (m *Metrics) IncLookup(list string, listed bool) {
	if m == nil {
		return
	}
	v := "false"
	if listed {
		v = "true"
	}
	m.Lookups.WithLabelValues(list, v).Inc()
}

func (m *Metrics) IncAttestation(valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.AttestationsLogged.WithLabelValues(v).Inc()
}
