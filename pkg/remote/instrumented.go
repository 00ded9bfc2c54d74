package remote

import (
	"context"
	"errors"

	"github.com/cuemby/cephdeploy/pkg/metrics"
)

type instrumented struct {
	next Executor
}

// WithMetrics wraps ex so every command is counted per host and outcome
func WithMetrics(ex Executor) Executor {
	return &instrumented{next: ex}
}

func (i *instrumented) Run(ctx context.Context, host string, cmd Command) (*Result, error) {
	timer := metrics.NewTimer()
	res, err := i.next.Run(ctx, host, cmd)
	timer.ObserveDuration(metrics.RemoteCommandDuration)

	status := "ok"
	var cmdErr *CommandError
	switch {
	case errors.As(err, &cmdErr):
		status = "failed"
	case err != nil:
		status = "error"
	}
	metrics.RemoteCommandsTotal.WithLabelValues(host, status).Inc()
	return res, err
}
