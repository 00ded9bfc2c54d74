package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/wait"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeMonQuorum CheckType = "mon-quorum"
	CheckTypeOSDsUp    CheckType = "osds-up"
	CheckTypeHealthOK  CheckType = "health-ok"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
	// Err is set when the cluster could not be queried at all
	Err error
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Querier is the part of the ceph CLI the checkers need
type Querier interface {
	MonDump(ctx context.Context, host string) (*cephadm.MonDump, error)
	OSDDump(ctx context.Context, host string) (*cephadm.OSDDump, error)
	Health(ctx context.Context, host string) (*cephadm.Health, error)
}

// MonQuorum holds once the monitor map lists Want monitors
type MonQuorum struct {
	Ceph Querier
	Host string
	Want int
}

// Type implements Checker
func (m *MonQuorum) Type() CheckType { return CheckTypeMonQuorum }

// Check implements Checker
func (m *MonQuorum) Check(ctx context.Context) Result {
	start := time.Now()
	dump, err := m.Ceph.MonDump(ctx, m.Host)
	if err != nil {
		return failed(start, err)
	}
	return Result{
		Healthy:   len(dump.Mons) == m.Want,
		Message:   fmt.Sprintf("%d/%d mons in monmap", len(dump.Mons), m.Want),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// OSDsUp holds once Want OSDs are reported up
type OSDsUp struct {
	Ceph Querier
	Host string
	Want int
}

// Type implements Checker
func (o *OSDsUp) Type() CheckType { return CheckTypeOSDsUp }

// Check implements Checker
func (o *OSDsUp) Check(ctx context.Context) Result {
	start := time.Now()
	dump, err := o.Ceph.OSDDump(ctx, o.Host)
	if err != nil {
		return failed(start, err)
	}
	up := dump.Up()
	return Result{
		Healthy:   len(dump.OSDs) == o.Want && up == o.Want,
		Message:   fmt.Sprintf("%d/%d osds up (%d in map)", up, o.Want, len(dump.OSDs)),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// HealthOK holds once the cluster reports HEALTH_OK
type HealthOK struct {
	Ceph Querier
	Host string
}

// Type implements Checker
func (h *HealthOK) Type() CheckType { return CheckTypeHealthOK }

// Check implements Checker
func (h *HealthOK) Check(ctx context.Context) Result {
	start := time.Now()
	health, err := h.Ceph.Health(ctx, h.Host)
	if err != nil {
		return failed(start, err)
	}

	names := make([]string, 0, len(health.Checks))
	for name := range health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := health.Status
	for _, name := range names {
		msg += fmt.Sprintf("; %s: %s", name, health.Checks[name].Summary.Message)
	}
	return Result{
		Healthy:   health.Status == "HEALTH_OK",
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func failed(start time.Time, err error) Result {
	return Result{
		Message:   err.Error(),
		CheckedAt: start,
		Duration:  time.Since(start),
		Err:       err,
	}
}

// Condition adapts a checker to the convergence waiter
func Condition(c Checker) wait.Condition {
	return func(ctx context.Context) (bool, string, error) {
		res := c.Check(ctx)
		return res.Healthy, res.Message, res.Err
	}
}

// WaitFor polls c until it is healthy
func WaitFor(ctx context.Context, w *wait.Waiter, c Checker) error {
	return w.WaitFor(ctx, string(c.Type()), Condition(c))
}
