package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/metrics"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

const (
	DefaultInterval = time.Second
	DefaultAttempts = 180
)

// Condition is polled until it reports done. state describes what was
// observed and is reported when the attempts run out. A non-nil error is
// fatal and ends the wait immediately.
type Condition func(ctx context.Context) (done bool, state string, err error)

// TimeoutError is returned when a condition never held within the allowed attempts
type TimeoutError struct {
	Condition string
	Attempts  int
	LastState string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for %s after %d attempts", e.Condition, e.Attempts)
	if e.LastState != "" {
		msg += " (last state: " + e.LastState + ")"
	}
	return msg
}

// Waiter polls conditions at a fixed interval
type Waiter struct {
	Interval time.Duration
	Attempts int
	Clock    clock.Clock
}

// NewWaiter creates a Waiter on the wall clock
func NewWaiter(interval time.Duration, attempts int) *Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Waiter{
		Interval: interval,
		Attempts: attempts,
		Clock:    clock.WallClock,
	}
}

// DefaultWaiter polls once a second for up to three minutes
func DefaultWaiter() *Waiter {
	return NewWaiter(DefaultInterval, DefaultAttempts)
}

var errNotYet = errors.New("condition not met")

// WaitFor polls cond until it holds, it fails, or the attempts are used up.
// The condition is called exactly once per attempt and never again after it
// holds.
func (w *Waiter) WaitFor(ctx context.Context, name string, cond Condition) error {
	logger := log.WithComponent("wait").With().Str("condition", name).Logger()

	clk := w.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	var (
		attempts  int
		lastState string
		fatal     error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			done, state, err := cond(ctx)
			switch {
			case err != nil:
				metrics.ConvergencePolls.WithLabelValues(name, "error").Inc()
				fatal = err
				return err
			case !done:
				metrics.ConvergencePolls.WithLabelValues(name, "unmet").Inc()
				lastState = state
				return errNotYet
			}
			metrics.ConvergencePolls.WithLabelValues(name, "met").Inc()
			return nil
		},
		IsFatalError: func(err error) bool {
			return err != errNotYet
		},
		NotifyFunc: func(_ error, attempt int) {
			logger.Debug().Int("attempt", attempt).Str("state", lastState).Msg("Condition not met yet")
		},
		Attempts: w.Attempts,
		Delay:    w.Interval,
		Clock:    clk,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
		logger.Debug().Int("attempts", attempts).Msg("Condition met")
		return nil
	case fatal != nil:
		return fmt.Errorf("waiting for %s: %w", name, fatal)
	case retry.IsRetryStopped(err):
		return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	case retry.IsAttemptsExceeded(err):
		return &TimeoutError{Condition: name, Attempts: attempts, LastState: lastState}
	}
	return fmt.Errorf("waiting for %s: %w", name, err)
}
