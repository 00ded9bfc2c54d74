package deploy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/config"
	"github.com/cuemby/cephdeploy/pkg/daemon"
	"github.com/cuemby/cephdeploy/pkg/events"
	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/phase"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/storage"
	"github.com/cuemby/cephdeploy/pkg/topology"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/cuemby/cephdeploy/pkg/wait"
	"github.com/rs/zerolog"
)

// Summary is the verdict of a run
type Summary struct {
	Success       bool
	FailureReason string
}

// Deployer stands up one cluster, hands it to a workload and tears it down
type Deployer struct {
	job       *config.Job
	exec      remote.Executor
	addrs     topology.AddressResolver
	clusters  *Clusters
	daemons   *daemon.Registry
	waiter    *wait.Waiter
	publisher events.Publisher
	logger    zerolog.Logger

	state *types.ClusterState
	image config.ImageRef

	mu      sync.Mutex
	summary Summary
	runner  *phase.Runner
	removed bool
}

// Option configures a Deployer
type Option func(*Deployer)

// WithClusters shares a cluster state registry between deployers
func WithClusters(c *Clusters) Option {
	return func(d *Deployer) {
		d.clusters = c
	}
}

// WithDaemons shares a daemon registry between deployers
func WithDaemons(r *daemon.Registry) Option {
	return func(d *Deployer) {
		d.daemons = r
	}
}

// WithAddressResolver sets how host addresses are found for monitor placement
func WithAddressResolver(r topology.AddressResolver) Option {
	return func(d *Deployer) {
		d.addrs = r
	}
}

// WithWaiter overrides the convergence waiter
func WithWaiter(w *wait.Waiter) Option {
	return func(d *Deployer) {
		d.waiter = w
	}
}

// WithPublisher publishes phase and daemon events
func WithPublisher(p events.Publisher) Option {
	return func(d *Deployer) {
		d.publisher = p
	}
}

// New prepares a deployment of job. The container image is resolved here so
// a configuration error surfaces before any phase runs. State left by an
// earlier run of the same cluster is picked up from the cluster registry.
func New(job *config.Job, exec remote.Executor, opts ...Option) (*Deployer, error) {
	d := &Deployer{
		job:       job,
		exec:      exec,
		publisher: events.Discard,
		logger:    log.WithCluster(job.Cluster).With().Str("component", "deploy").Logger(),
		summary:   Summary{Success: true},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clusters == nil {
		d.clusters = NewClusters(nil)
	}
	if d.daemons == nil {
		d.daemons = daemon.NewRegistry(exec)
	}
	if d.waiter == nil {
		d.waiter = wait.NewWaiter(job.Convergence.Interval, job.Convergence.Attempts)
	}
	if d.addrs == nil {
		d.addrs = &inventoryAddresses{hosts: job.Hosts, fallback: exec}
	}

	state, err := d.clusters.Get(job.Cluster)
	if err != nil {
		return nil, err
	}
	d.state = state

	if state.Image == "" {
		ref, err := job.ResolveImage()
		if err != nil {
			return nil, err
		}
		d.image = ref
		state.Image = ref.Image
	} else {
		d.image = config.ImageRef{Image: state.Image, Ref: job.SHA1}
		if d.image.Ref == "" {
			d.image.Ref = job.Branch
		}
	}
	d.logger.Info().Str("image", state.Image).Msg("Cluster image")

	// daemons placed by an earlier process are controllable again
	for _, ref := range state.Daemons {
		d.daemons.Register(ref.Host, ref.Type, ref.ID, state.Name, state.FSID)
	}

	return d, nil
}

// State returns the cluster state
func (d *Deployer) State() *types.ClusterState {
	return d.state
}

// Daemons returns the daemon registry
func (d *Deployer) Daemons() *daemon.Registry {
	return d.daemons
}

// Summary returns the verdict of the last run
func (d *Deployer) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary
}

func (d *Deployer) fail(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.summary.Success = false
	if reason != "" && d.summary.FailureReason == "" {
		d.summary.FailureReason = reason
	}
}

// Records returns the phase records of the current or last run
func (d *Deployer) Records() []phase.Record {
	d.mu.Lock()
	runner := d.runner
	d.mu.Unlock()
	if runner == nil {
		return nil
	}
	return runner.Records()
}

// Run deploys the cluster, waits for it to become healthy when configured,
// runs body and tears everything down again. Every phase entered is
// released even when body fails.
func (d *Deployer) Run(ctx context.Context, body func(ctx context.Context, d *Deployer) error) error {
	runner := phase.NewRunner(d.state.Name, d.Phases(),
		phase.WithPublisher(d.publisher),
		phase.WithCheckpoint(d.checkpoint),
	)
	d.mu.Lock()
	d.runner = runner
	d.mu.Unlock()

	err := runner.Run(ctx, func(ctx context.Context) error {
		if d.job.WaitForHealthyEnabled() {
			if err := d.Healthy(ctx); err != nil {
				return err
			}
		}
		d.logger.Info().Msg("Setup complete")
		if body == nil {
			return nil
		}
		return body(ctx, d)
	})
	if err != nil {
		d.fail("")
	}
	d.logger.Info().Msg("Teardown complete")
	return err
}

func (d *Deployer) checkpoint(ctx context.Context, rec phase.Record) {
	d.mu.Lock()
	removed := d.removed
	runner := d.runner
	d.mu.Unlock()
	if removed {
		return
	}

	if err := d.clusters.Save(d.state); err != nil {
		d.logger.Warn().Err(err).Str("phase", rec.Name).Msg("Failed to persist cluster state")
	}
	if runner == nil {
		return
	}

	records := runner.Records()
	out := make([]storage.PhaseRecord, 0, len(records))
	for _, r := range records {
		pr := storage.PhaseRecord{Name: r.Name, State: string(r.State), UpdatedAt: r.EnteredAt}
		if r.ReleasedAt.After(pr.UpdatedAt) {
			pr.UpdatedAt = r.ReleasedAt
		}
		if r.Err != nil {
			pr.Error = r.Err.Error()
		}
		out = append(out, pr)
	}
	if err := d.clusters.SavePhases(d.state.Name, out); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to persist phase records")
	}
}

// forget drops the persisted state once the cluster is gone from every host
func (d *Deployer) forget() error {
	d.mu.Lock()
	d.removed = true
	d.mu.Unlock()
	return d.clusters.Forget(d.state.Name)
}

// cli addresses the cluster as currently known
func (d *Deployer) cli() *cephadm.CLI {
	return cephadm.New(d.exec, cephadm.Identity{
		Cluster: d.state.Name,
		FSID:    d.state.FSID,
		Image:   d.state.Image,
		Binary:  d.state.CephadmPath,
	})
}

// register records a placed daemon in the registry and the cluster state
func (d *Deployer) register(host string, typ types.ServiceType, id string) {
	d.daemons.Register(host, typ, id, d.state.Name, d.state.FSID)
	d.state.RecordDaemon(types.DaemonRef{Host: host, Type: typ, ID: id})
	d.publisher.Publish(&events.Event{
		Type:     events.EventDaemonRegistered,
		Cluster:  d.state.Name,
		Message:  fmt.Sprintf("%s.%s", typ, id),
		Metadata: map[string]string{"host": host},
	})
}

func (d *Deployer) hostNames() []string {
	return d.state.HostNames()
}

func (d *Deployer) requireBootstrapped() error {
	if !d.state.IsBootstrapped() {
		return fmt.Errorf("cluster %s has not been bootstrapped", d.state.Name)
	}
	return nil
}

// inventoryAddresses resolves hosts from their inventory address when it is
// an IP, otherwise through the executor when it can tell
type inventoryAddresses struct {
	hosts    []types.Host
	fallback interface{}
}

func (a *inventoryAddresses) PeerAddress(host string) (string, error) {
	for _, h := range a.hosts {
		if h.Name == host && net.ParseIP(h.Address) != nil {
			return h.Address, nil
		}
	}
	if r, ok := a.fallback.(topology.AddressResolver); ok {
		return r.PeerAddress(host)
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address found for %s", host)
	}
	return addrs[0], nil
}
