package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for detection passes.
type Metrics struct {
	// Candidates emitted by rule
	Candidates *prometheus.CounterVec

	// Rule evaluation failures by rule
	RuleErrors *prometheus.CounterVec

	// Passes by outcome: ok, partial, failed
	Passes       *prometheus.CounterVec
	PassDuration prometheus.Histogram
}

// New registers the detector metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "achievements_detector_candidates_total",
			Help: "Total achievement candidates emitted by rule",
		}, []string{"rule"}),
		RuleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "achievements_detector_rule_errors_total",
			Help: "Total rule evaluation failures by rule",
		}, []string{"rule"}),
		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "achievements_detector_passes_total",
			Help: "Total detection passes by outcome",
		}, []string{"outcome"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "achievements_detector_pass_duration_seconds",
			Help:    "Duration of detection passes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) IncCandidate(rule string) {
	if m != nil {
		m.Candidates.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) IncRuleError(rule string) {
	if m != nil {
		m.RuleErrors.WithLabelValues(rule).Inc()
	}
}

// ObservePass records a pass that started at start.
func (m *Metrics) ObservePass(start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(time.Since(start).Seconds())
}
