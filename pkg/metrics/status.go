package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/cephdeploy/pkg/events"
)

// Run states reported by the status endpoints
const (
	RunDeploying   = "deploying"
	RunActive      = "active"
	RunTearingDown = "tearing-down"
	RunDone        = "done"
	RunFailed      = "failed"
)

// RunStatus is the progress of one deployment as seen from its events
type RunStatus struct {
	Cluster   string            `json:"cluster"`
	State     string            `json:"state"`
	Phase     string            `json:"phase,omitempty"`
	Phases    map[string]string `json:"phases"`
	Daemons   int               `json:"daemons"`
	Message   string            `json:"message,omitempty"`
	Version   string            `json:"version,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
}

// StatusTracker follows the events of a run
type StatusTracker struct {
	mu        sync.RWMutex
	cluster   string
	state     string
	phase     string
	phases    map[string]string
	daemons   int
	message   string
	version   string
	startTime time.Time
}

// NewStatusTracker creates a tracker for a run that has not started yet
func NewStatusTracker(version string) *StatusTracker {
	return &StatusTracker{
		state:     RunDeploying,
		phases:    make(map[string]string),
		version:   version,
		startTime: time.Now(),
	}
}

// Observe updates the status from one event
func (s *StatusTracker) Observe(ev *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Cluster != "" {
		s.cluster = ev.Cluster
	}
	if ev.Phase != "" && ev.Message != "" {
		s.phases[ev.Phase] = ev.Message
	}

	switch ev.Type {
	case events.EventPhaseEntering:
		s.phase = ev.Phase
	case events.EventPhaseFailed, events.EventPhaseReleaseFailed:
		s.message = ev.Phase + ": " + ev.Metadata["error"]
		if s.state != RunFailed {
			s.state = RunTearingDown
		}
	case events.EventRunActive:
		s.state = RunActive
		s.phase = ""
	case events.EventPhaseReleased:
		if s.state == RunActive {
			s.state = RunTearingDown
		}
		s.phase = ev.Phase
	case events.EventRunDone:
		s.phase = ""
		if err := ev.Metadata["error"]; err != "" || s.message != "" {
			s.state = RunFailed
			if err != "" {
				s.message = err
			}
		} else {
			s.state = RunDone
		}
	case events.EventDaemonRegistered:
		s.daemons++
	}
}

// Status returns a snapshot of the run
func (s *StatusTracker) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phases := make(map[string]string, len(s.phases))
	for k, v := range s.phases {
		phases[k] = v
	}
	return RunStatus{
		Cluster:   s.cluster,
		State:     s.state,
		Phase:     s.phase,
		Phases:    phases,
		Daemons:   s.daemons,
		Message:   s.message,
		Version:   s.version,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).String(),
	}
}

// StatusHandler returns an HTTP handler for the /status endpoint
func (s *StatusTracker) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.Status()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if status.State == RunFailed {
			statusCode = http.StatusInternalServerError
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(status)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint. It reports
// ready only while the cluster is up and the workload runs.
func (s *StatusTracker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.Status()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if status.State != RunActive {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(map[string]string{"state": status.State})
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func (s *StatusTracker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(s.startTime).String(),
		})
	}
}

// Mux serves the Prometheus metrics and the run status endpoints
func (s *StatusTracker) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/status", s.StatusHandler())
	mux.Handle("/ready", s.ReadyHandler())
	mux.Handle("/healthz", s.LivenessHandler())
	return mux
}
