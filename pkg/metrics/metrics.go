package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Phase metrics
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cephdeploy_phase_duration_seconds",
			Help:    "Time spent entering or releasing a setup phase",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"phase", "step"},
	)

	PhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephdeploy_phase_transitions_total",
			Help: "Phase transitions by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	// Remote execution metrics
	RemoteCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephdeploy_remote_commands_total",
			Help: "Remote commands executed by host and status",
		},
		[]string{"host", "status"},
	)

	RemoteCommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cephdeploy_remote_command_duration_seconds",
			Help:    "Remote command latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Convergence metrics
	ConvergencePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephdeploy_convergence_polls_total",
			Help: "Convergence checks issued by condition and result",
		},
		[]string{"condition", "result"},
	)

	// Cluster metrics
	DaemonsRegistered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cephdeploy_daemons_registered",
			Help: "Daemons registered per cluster and type",
		},
		[]string{"cluster", "type"},
	)
)

func init() {
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(PhaseTransitions)
	prometheus.MustRegister(RemoteCommandsTotal)
	prometheus.MustRegister(RemoteCommandDuration)
	prometheus.MustRegister(ConvergencePolls)
	prometheus.MustRegister(DaemonsRegistered)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
