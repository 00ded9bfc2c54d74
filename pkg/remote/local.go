package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/cuemby/cephdeploy/pkg/log"
)

// LocalExecutor runs every command on this machine, ignoring the host name.
// It is meant for single-host clusters driven from the host itself.
type LocalExecutor struct {
	// Timeout bounds each command (default: no limit)
	Timeout time.Duration
}

// NewLocalExecutor creates a local executor
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run executes cmd through bash
func (l *LocalExecutor) Run(ctx context.Context, host string, cmd Command) (*Result, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	line := cmd.Line()
	log.Logger.Debug().Str("host", host).Str("cmd", cmd.String()).Msg("Running locally")

	c := exec.CommandContext(ctx, "bash", "-c", line)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	err := c.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run command on %s: %w", host, err)
	}
	res.ExitCode = exitErr.ExitCode()

	return res, &CommandError{
		Host:     host,
		Command:  cmd.String(),
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}
