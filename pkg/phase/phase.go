package phase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cephdeploy/pkg/events"
	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/metrics"
	"github.com/rs/zerolog"
)

// Phase is one acquire/release pair of the setup sequence
type Phase struct {
	Name string

	// Enter provisions the phase. A phase whose Enter fails is not released;
	// Enter must undo its own partial work before returning an error.
	Enter func(ctx context.Context) error

	// Exit releases what Enter provisioned. cause is the error that is
	// unwinding the run, nil on normal completion.
	Exit func(ctx context.Context, cause error) error

	// Skip, when it returns true, skips the phase entirely: neither Enter
	// nor Exit is called.
	Skip func() bool
}

// State is the lifecycle state of one phase
type State string

const (
	StatePending       State = "pending"
	StateEntering      State = "entering"
	StateEntered       State = "entered"
	StateSkipped       State = "skipped"
	StateFailed        State = "failed"
	StateExiting       State = "exiting"
	StateReleased      State = "released"
	StateReleaseFailed State = "release-failed"
)

// Record tracks one phase through a run
type Record struct {
	Name       string
	State      State
	Entered    bool
	Err        error
	EnteredAt  time.Time
	ReleasedAt time.Time
}

// Runner sequences phases and guarantees reverse-order release.
//
// Phases are entered in order. When an Enter fails, every phase entered so
// far is released in strict reverse order before the failure is returned.
// Once all phases are entered the body runs; afterwards every entered phase
// is released in reverse order whatever the body returned. A failing release
// is logged and recorded but never stops the remaining releases.
type Runner struct {
	cluster    string
	phases     []Phase
	publisher  events.Publisher
	checkpoint func(ctx context.Context, rec Record)
	logger     zerolog.Logger

	mu      sync.Mutex
	records []Record
}

// Option configures a Runner
type Option func(*Runner)

// WithPublisher publishes a lifecycle event per transition
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithCheckpoint calls fn after every phase is entered, skipped or released
func WithCheckpoint(fn func(ctx context.Context, rec Record)) Option {
	return func(r *Runner) {
		r.checkpoint = fn
	}
}

// NewRunner creates a runner for the phases of one cluster
func NewRunner(cluster string, phases []Phase, opts ...Option) *Runner {
	r := &Runner{
		cluster:   cluster,
		phases:    phases,
		publisher: events.Discard,
		logger:    log.WithCluster(cluster).With().Str("component", "phase").Logger(),
		records:   make([]Record, len(phases)),
	}
	for i, p := range phases {
		r.records[i] = Record{Name: p.Name, State: StatePending}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run enters every phase, runs body, then releases every entered phase.
// The returned error joins the triggering failure, if any, with every
// release failure.
func (r *Runner) Run(ctx context.Context, body func(ctx context.Context) error) error {
	var entered []int

	for i, p := range r.phases {
		if p.Skip != nil && p.Skip() {
			r.logger.Info().Str("phase", p.Name).Msg("Cluster already bootstrapped, skipping phase")
			r.transition(ctx, i, StateSkipped, nil, events.EventPhaseSkipped)
			continue
		}

		r.transition(ctx, i, StateEntering, nil, events.EventPhaseEntering)
		r.logger.Info().Str("phase", p.Name).Msg("Entering phase")

		timer := metrics.NewTimer()
		var err error
		if p.Enter != nil {
			err = p.Enter(ctx)
		}
		timer.ObserveDurationVec(metrics.PhaseDuration, p.Name, "enter")

		if err != nil {
			err = fmt.Errorf("phase %s: %w", p.Name, err)
			r.logger.Error().Err(err).Str("phase", p.Name).Msg("Phase failed to enter")
			r.transition(ctx, i, StateFailed, err, events.EventPhaseFailed)
			return errors.Join(err, r.unwind(ctx, entered, err))
		}

		entered = append(entered, i)
		r.transition(ctx, i, StateEntered, nil, events.EventPhaseEntered)
	}

	r.logger.Info().Msg("All phases entered")
	r.publish(events.EventRunActive, "", "", nil)

	var cause error
	if body != nil {
		cause = body(ctx)
		if cause != nil {
			r.logger.Error().Err(cause).Msg("Run failed, releasing phases")
		}
	}

	return errors.Join(cause, r.unwind(ctx, entered, cause))
}

// unwind releases the entered phases in reverse order. Releases run even
// when ctx is already cancelled.
func (r *Runner) unwind(ctx context.Context, entered []int, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for j := len(entered) - 1; j >= 0; j-- {
		i := entered[j]
		p := r.phases[i]

		r.transition(ctx, i, StateExiting, nil, "")
		if p.Exit == nil {
			r.transition(ctx, i, StateReleased, nil, events.EventPhaseReleased)
			continue
		}

		r.logger.Info().Str("phase", p.Name).Msg("Releasing phase")
		timer := metrics.NewTimer()
		err := p.Exit(ctx, cause)
		timer.ObserveDurationVec(metrics.PhaseDuration, p.Name, "exit")

		if err != nil {
			err = fmt.Errorf("release %s: %w", p.Name, err)
			r.logger.Error().Err(err).Str("phase", p.Name).Msg("Phase release failed, continuing")
			r.transition(ctx, i, StateReleaseFailed, err, events.EventPhaseReleaseFailed)
			errs = append(errs, err)
			continue
		}
		r.transition(ctx, i, StateReleased, nil, events.EventPhaseReleased)
	}

	r.publish(events.EventRunDone, "", "", cause)
	return errors.Join(errs...)
}

func (r *Runner) transition(ctx context.Context, i int, state State, err error, ev events.EventType) {
	r.mu.Lock()
	rec := &r.records[i]
	rec.State = state
	if err != nil {
		rec.Err = err
	}
	switch state {
	case StateEntered:
		rec.Entered = true
		rec.EnteredAt = time.Now()
	case StateReleased, StateReleaseFailed:
		rec.ReleasedAt = time.Now()
	}
	snapshot := *rec
	r.mu.Unlock()

	if ev == "" {
		return
	}
	metrics.PhaseTransitions.WithLabelValues(snapshot.Name, string(state)).Inc()
	r.publish(ev, snapshot.Name, string(state), err)

	switch state {
	case StateEntered, StateSkipped, StateReleased:
		if r.checkpoint != nil {
			r.checkpoint(ctx, snapshot)
		}
	}
}

func (r *Runner) publish(t events.EventType, name, message string, err error) {
	ev := &events.Event{
		Type:    t,
		Cluster: r.cluster,
		Phase:   name,
		Message: message,
	}
	if err != nil {
		ev.Metadata = map[string]string{"error": err.Error()}
	}
	r.publisher.Publish(ev)
}

// Records returns the state of every phase in declaration order
func (r *Runner) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Entered returns the names of the phases currently entered
func (r *Runner) Entered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, rec := range r.records {
		if rec.State == StateEntered {
			names = append(names, rec.Name)
		}
	}
	return names
}
