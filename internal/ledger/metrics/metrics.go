package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the achievement ledger.
type Metrics struct {
	Granted prometheus.Counter

	// Rejected candidates by the first missing field
	Rejected *prometheus.CounterVec

	Duplicates prometheus.Counter

	// Snapshot writes by outcome
	Flushes       *prometheus.CounterVec
	FlushDuration prometheus.Histogram

	Entries prometheus.Gauge
}

// New registers the ledger metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Granted: factory.NewCounter(prometheus.CounterOpts{
			Name: "achievements_granted_total",
			Help: "Total achievements appended to the ledger",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "achievements_rejected_total",
			Help: "Total candidates rejected for a missing required field",
		}, []string{"field"}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "achievements_duplicates_total",
			Help: "Total candidates ignored because the achievement was already granted",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "achievements_ledger_flushes_total",
			Help: "Total ledger snapshot writes by outcome",
		}, []string{"outcome"}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "achievements_ledger_flush_duration_seconds",
			Help:    "Duration of ledger snapshot writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "achievements_ledger_entries",
			Help: "Number of achievements currently in the ledger",
		}),
	}
}

func (m *Metrics) IncGranted() {
	if m != nil {
		m.Granted.Inc()
	}
}

func (m *Metrics) IncRejected(field string) {
	if m != nil {
		m.Rejected.WithLabelValues(field).Inc()
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.Duplicates.Inc()
	}
}

// ObserveFlush records a snapshot write that started at start.
func (m *Metrics) ObserveFlush(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Flushes.WithLabelValues(outcome).Inc()
	m.FlushDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetEntries(n int) {
	if m != nil {
		m.Entries.Set(float64(n))
	}
}
