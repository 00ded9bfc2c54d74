package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/health"
	"github.com/cuemby/cephdeploy/pkg/types"
	"gopkg.in/yaml.v3"
)

// Healthy waits until every OSD is up and the cluster reports HEALTH_OK
func (d *Deployer) Healthy(ctx context.Context) error {
	d.logger.Info().Msg("Waiting until cluster is healthy")
	if err := d.waitOSDsUp(ctx); err != nil {
		return err
	}
	return health.WaitFor(ctx, d.waiter, &health.HealthOK{Ceph: d.cli(), Host: d.state.BootstrapHost})
}

func (d *Deployer) waitOSDsUp(ctx context.Context) error {
	want := len(d.state.AssignmentsOf(types.ServiceOSD))
	if err := health.WaitFor(ctx, d.waiter, &health.OSDsUp{Ceph: d.cli(), Host: d.state.BootstrapHost, Want: want}); err != nil {
		return err
	}
	d.daemons.Confirm(types.ServiceOSD, d.state.Name)
	return nil
}

// Stop stops the selected daemons. A nil selection stops every registered
// daemon; see daemon.Registry.ResolveRoleList for the selection syntax.
func (d *Deployer) Stop(ctx context.Context, roles []string) error {
	if err := d.requireBootstrapped(); err != nil {
		return err
	}
	selected, err := d.daemons.ResolveRoleList(roles, types.DaemonTypes, d.state.Name)
	if err != nil {
		return err
	}
	for _, role := range selected {
		h, err := d.daemons.Get(role.Type, role.ID, role.Cluster)
		if err != nil {
			return err
		}
		if err := h.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RestartOptions selects daemons to restart and what to wait for afterwards
type RestartOptions struct {
	Roles []string
	// WaitForHealthy waits for HEALTH_OK afterwards (default true)
	WaitForHealthy *bool
	WaitForOSDsUp  bool
}

// Restart stops and starts the selected daemons. Restarted OSDs are marked
// down in between so the cluster notices the restart.
func (d *Deployer) Restart(ctx context.Context, opts RestartOptions) error {
	if err := d.requireBootstrapped(); err != nil {
		return err
	}
	selected, err := d.daemons.ResolveRoleList(opts.Roles, types.DaemonTypes, d.state.Name)
	if err != nil {
		return err
	}
	d.logger.Info().Interface("daemons", selected).Msg("Restarting daemons")

	cli := d.cli()
	for _, role := range selected {
		h, err := d.daemons.Get(role.Type, role.ID, role.Cluster)
		if err != nil {
			return err
		}
		if err := h.Stop(ctx); err != nil {
			return err
		}
		if role.Type == types.ServiceOSD {
			if _, err := cli.Ceph(ctx, d.state.BootstrapHost, "osd", "down", role.ID); err != nil {
				return err
			}
		}
		if err := h.Restart(ctx); err != nil {
			return err
		}
	}

	if opts.WaitForHealthy == nil || *opts.WaitForHealthy {
		if err := d.Healthy(ctx); err != nil {
			return err
		}
	}
	if opts.WaitForOSDsUp {
		return d.waitOSDsUp(ctx)
	}
	return nil
}

// ShellRequest runs shell snippets inside the cluster container on the hosts
// of the given roles. The role "all" expands to every declared role.
type ShellRequest struct {
	Commands map[string][]string
	Env      map[string]string
}

// Shell runs each role's commands with bash -c through cephadm shell on the
// role's host. Roles run in sorted order.
func (d *Deployer) Shell(ctx context.Context, req ShellRequest) error {
	if err := d.requireBootstrapped(); err != nil {
		return err
	}

	var extra []string
	envKeys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		extra = append(extra, "-e", k+"="+req.Env[k])
	}

	commands := req.Commands
	if all, ok := commands["all"]; ok && len(commands) == 1 {
		commands = make(map[string][]string)
		for _, h := range d.state.Hosts {
			for _, role := range h.Roles {
				commands[role] = all
			}
		}
	}

	roles := make([]string, 0, len(commands))
	for role := range commands {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	cli := d.cli()
	for _, role := range roles {
		host, err := d.hostOf(role)
		if err != nil {
			return err
		}
		d.logger.Info().Str("host", host).Msgf("Running commands on role %s", role)
		for _, c := range commands[role] {
			if _, err := cli.ShellWith(ctx, host, cephadm.ShellOptions{Extra: extra}, "bash", "-c", c); err != nil {
				return err
			}
		}
	}
	return nil
}

// hostOf finds the single host that declares role
func (d *Deployer) hostOf(role string) (string, error) {
	var found []string
	for _, h := range d.state.Hosts {
		for _, r := range h.Roles {
			if r == role {
				found = append(found, h.Name)
				break
			}
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("role %s is declared on %d hosts, want exactly one", role, len(found))
	}
	return found[0], nil
}

// Apply feeds service specs to the orchestrator as one multi-document YAML stream
func (d *Deployer) Apply(ctx context.Context, specs []map[string]interface{}) error {
	if err := d.requireBootstrapped(); err != nil {
		return err
	}

	docs := make([]string, 0, len(specs))
	for _, spec := range specs {
		out, err := yaml.Marshal(spec)
		if err != nil {
			return fmt.Errorf("failed to encode spec: %w", err)
		}
		docs = append(docs, string(out))
	}
	y := strings.Join(docs, "\n---\n")

	d.logger.Info().Msg("Applying spec:\n" + y)
	_, err := d.cli().ShellWith(ctx, d.state.BootstrapHost, cephadm.ShellOptions{Stdin: []byte(y)},
		"ceph", "orch", "apply", "-i", "-")
	return err
}

// Purge removes the cluster from every host and drops its persisted state.
// It serves clusters left behind by an interrupted run, whose teardown
// phases were skipped on resume.
func (d *Deployer) Purge(ctx context.Context) error {
	if d.state.FSID == "" {
		return fmt.Errorf("cluster %s has no fsid, nothing to purge", d.state.Name)
	}
	return d.removeCluster(ctx, nil)
}
