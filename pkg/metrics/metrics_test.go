package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	assert.GreaterOrEqual(t, timer.Duration(), sleepDuration)
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_phase_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase", "step"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "mons", "enter")

	assert.Equal(t, 1, testutil.CollectAndCount(histogramVec))
}

// TestCountersAreRegistered tests that the package collectors accept samples
func TestCountersAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(PhaseTransitions.WithLabelValues("test-phase", "entered"))
	PhaseTransitions.WithLabelValues("test-phase", "entered").Inc()
	after := testutil.ToFloat64(PhaseTransitions.WithLabelValues("test-phase", "entered"))
	assert.Equal(t, before+1, after)

	ConvergencePolls.WithLabelValues("quorum", "pending").Add(2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(ConvergencePolls.WithLabelValues("quorum", "pending")), 2.0)

	assert.NotNil(t, Handler())
}
