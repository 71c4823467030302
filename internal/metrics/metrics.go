// Package metrics holds the Prometheus instruments of the statistics service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Variable outcomes
const (
	OutcomeComputed    = "computed"
	OutcomePlaceholder = "placeholder"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
)

// Metrics groups the instruments; a nil *Metrics records nothing
type Metrics struct {
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	variables        *prometheus.CounterVec
	fieldErrors      *prometheus.CounterVec
	observationsSeen prometheus.Counter
}

// New registers the instruments with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldtrial",
			Name:      "statistics_runs_total",
			Help:      "Study statistics runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldtrial",
			Name:      "statistics_run_duration_seconds",
			Help:      "Wall time of a study statistics run",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}),
		variables: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldtrial",
			Name:      "statistics_variables_total",
			Help:      "Distinct variables processed by outcome",
		}, []string{"outcome"}),
		fieldErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldtrial",
			Name:      "observation_field_errors_total",
			Help:      "Observation values that could not be stored, by field",
		}, []string{"field"}),
		observationsSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldtrial",
			Name:      "statistics_values_accumulated_total",
			Help:      "Observation values fed into accumulators",
		}),
	}
}

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Variable(outcome string) {
	if m == nil {
		return
	}
	m.variables.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FieldError(field string) {
	if m == nil {
		return
	}
	m.fieldErrors.WithLabelValues(field).Inc()
}

func (m *Metrics) ValuesAccumulated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.observationsSeen.Add(float64(n))
}
