package cephadm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/topology"
	"github.com/rs/zerolog"
)

// Identity is what every cephadm invocation needs to address one cluster
type Identity struct {
	Cluster string
	FSID    string
	Image   string
	// Binary is the cephadm executable, a path in root mode or "cephadm"
	Binary string
}

// CLI drives cephadm and, through `cephadm shell`, the cluster's own ceph CLI
type CLI struct {
	exec   remote.Executor
	id     Identity
	logger zerolog.Logger
}

// New creates a CLI for one cluster
func New(exec remote.Executor, id Identity) *CLI {
	return &CLI{
		exec:   exec,
		id:     id,
		logger: log.WithCluster(id.Cluster).With().Str("component", "cephadm").Logger(),
	}
}

// Identity returns the cluster the CLI addresses
func (c *CLI) Identity() Identity {
	return c.id
}

// ShellOptions tunes one `cephadm shell` invocation
type ShellOptions struct {
	// Extra arguments passed to cephadm shell before "--", such as "-e K=V"
	Extra []string
	Stdin []byte
}

// ShellCommand builds the command that runs args inside the cluster's
// container with its config and admin keyring mounted
func (c *CLI) ShellCommand(opts ShellOptions, args ...string) remote.Command {
	argv := []string{
		c.id.Binary,
		"--image", c.id.Image,
		"shell",
		"-c", ConfPath(c.id.Cluster),
		"-k", AdminKeyringPath(c.id.Cluster),
		"--fsid", c.id.FSID,
	}
	argv = append(argv, opts.Extra...)
	argv = append(argv, "--")
	argv = append(argv, args...)
	return remote.Command{Args: argv, Stdin: opts.Stdin, Sudo: true}
}

// Shell runs args inside the cluster container on host
func (c *CLI) Shell(ctx context.Context, host string, args ...string) (*remote.Result, error) {
	return c.ShellWith(ctx, host, ShellOptions{}, args...)
}

// ShellWith runs args inside the cluster container on host with options
func (c *CLI) ShellWith(ctx context.Context, host string, opts ShellOptions, args ...string) (*remote.Result, error) {
	cmd := c.ShellCommand(opts, args...)
	c.logger.Debug().Str("host", host).Strs("args", args).Msg("cephadm shell")
	return c.exec.Run(ctx, host, cmd)
}

// Ceph runs a ceph CLI command on host and returns its stdout
func (c *CLI) Ceph(ctx context.Context, host string, args ...string) ([]byte, error) {
	res, err := c.Shell(ctx, host, append([]string{"ceph"}, args...)...)
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// CephJSON runs a ceph CLI command that prints JSON and decodes it into v
func (c *CLI) CephJSON(ctx context.Context, host string, v interface{}, args ...string) error {
	out, err := c.Ceph(ctx, host, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("failed to decode output of ceph %v: %w", args, err)
	}
	return nil
}

// MonDump returns the current monitor map
func (c *CLI) MonDump(ctx context.Context, host string) (*MonDump, error) {
	var d MonDump
	if err := c.CephJSON(ctx, host, &d, "mon", "dump", "-f", "json"); err != nil {
		return nil, err
	}
	return &d, nil
}

// OSDDump returns the current OSD map
func (c *CLI) OSDDump(ctx context.Context, host string) (*OSDDump, error) {
	var d OSDDump
	if err := c.CephJSON(ctx, host, &d, "osd", "dump", "-f", "json"); err != nil {
		return nil, err
	}
	return &d, nil
}

// Health returns the cluster health summary
func (c *CLI) Health(ctx context.Context, host string) (*Health, error) {
	var h Health
	if err := c.CephJSON(ctx, host, &h, "health", "-f", "json"); err != nil {
		return nil, err
	}
	return &h, nil
}

// OrchHosts lists the hosts the orchestrator manages
func (c *CLI) OrchHosts(ctx context.Context, host string) ([]OrchHost, error) {
	var hosts []OrchHost
	if err := c.CephJSON(ctx, host, &hosts, "orch", "host", "ls", "--format=json"); err != nil {
		return nil, err
	}
	return hosts, nil
}

// BootstrapOptions are the inputs of `cephadm bootstrap`
type BootstrapOptions struct {
	SeedConfig string
	PubKey     string
	// MonID and MgrID are empty in roleless mode
	MonID         string
	MgrID         string
	MonAddr       string
	SkipDashboard bool
}

// BootstrapCommand builds the bootstrap command line. The admin keyring
// bootstrap writes is made world readable so later phases can read it.
func (c *CLI) BootstrapCommand(opts BootstrapOptions) remote.Command {
	argv := []string{
		"sudo", c.id.Binary,
		"--image", c.id.Image,
		"-v",
		"bootstrap",
		"--fsid", c.id.FSID,
		"--config", opts.SeedConfig,
		"--output-config", ConfPath(c.id.Cluster),
		"--output-keyring", AdminKeyringPath(c.id.Cluster),
		"--output-pub-ssh-key", opts.PubKey,
	}
	if opts.MonID != "" {
		argv = append(argv,
			"--mon-id", opts.MonID,
			"--mgr-id", opts.MgrID,
			"--orphan-initial-daemons",
			"--skip-monitoring-stack",
		)
	}
	if topology.IsAddrvec(opts.MonAddr) {
		argv = append(argv, "--mon-addrv", opts.MonAddr)
	} else {
		argv = append(argv, "--mon-ip", opts.MonAddr)
	}
	if opts.SkipDashboard {
		argv = append(argv, "--skip-dashboard")
	}

	script := remote.Quote(argv...) + " && " + remote.Quote("sudo", "chmod", "+r", AdminKeyringPath(c.id.Cluster))
	return remote.Script(script)
}

// Bootstrap creates the cluster's first monitor and manager on host
func (c *CLI) Bootstrap(ctx context.Context, host string, opts BootstrapOptions) error {
	c.logger.Info().Str("host", host).Msg("Bootstrapping")
	if _, err := c.exec.Run(ctx, host, c.BootstrapCommand(opts)); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	return nil
}

// RmCluster removes every trace of the cluster from host
func (c *CLI) RmCluster(ctx context.Context, host string) error {
	_, err := c.exec.Run(ctx, host, remote.Sudo(c.id.Binary, "rm-cluster", "--fsid", c.id.FSID, "--force"))
	return err
}
