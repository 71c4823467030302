package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunFinished("succeeded", 20*time.Millisecond)
	m.RunFinished("succeeded", time.Second)
	m.Variable(OutcomeComputed)
	m.Variable(OutcomeFailed)
	m.FieldError("raw_value")
	m.ValuesAccumulated(3)
	m.ValuesAccumulated(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.variables.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fieldErrors.WithLabelValues("raw_value")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.observationsSeen))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunFinished("failed", time.Second)
		m.Variable(OutcomeSkipped)
		m.FieldError("corrected_value")
		m.ValuesAccumulated(1)
	})
}
