package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/types"
)

// bootstrap creates the first monitor and manager, captures the cluster's
// config and keyrings and adds every other host to the orchestrator. On
// failure it releases whatever it already set up.
func (d *Deployer) bootstrap(ctx context.Context) error {
	if err := d.bootstrapCluster(ctx); err != nil {
		if rerr := d.releaseBootstrap(ctx, err); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	d.state.MarkBootstrapped()
	return nil
}

func (d *Deployer) bootstrapCluster(ctx context.Context) error {
	name := d.state.Name
	host := d.state.BootstrapHost
	testdir := d.job.TestDir
	cli := d.cli()

	if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Sudo("mkdir", "-p", "/etc/ceph")); err != nil {
		return err
	}
	if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Sudo("chmod", "777", "/etc/ceph")); err != nil {
		return err
	}

	d.logger.Info().Msg("Writing seed config")
	seed, err := d.job.SeedConfig(d.state.FSID)
	if err != nil {
		return err
	}
	if err := remote.WriteFile(ctx, d.exec, host, cephadm.SeedConfPath(testdir, name), seed, remote.WriteOptions{}); err != nil {
		return err
	}
	d.logger.Debug().Msg("Seed config:\n" + string(seed))
	d.state.SetConfig(seed)

	d.register(host, types.ServiceMon, d.state.FirstMonID)
	if !d.state.Roleless {
		d.register(host, types.ServiceMgr, d.state.FirstMgrID)
	}

	firstMon, err := types.ParseRole(d.state.FirstMonRole)
	if err != nil {
		return err
	}
	monAddr, ok := d.state.MonAddr(firstMon)
	if !ok {
		return fmt.Errorf("no address chosen for %s", d.state.FirstMonRole)
	}

	opts := cephadm.BootstrapOptions{
		SeedConfig:    cephadm.SeedConfPath(testdir, name),
		PubKey:        cephadm.PubKeyPath(testdir, name),
		MonAddr:       monAddr,
		SkipDashboard: d.job.SkipDashboard,
	}
	if !d.state.Roleless {
		opts.MonID = d.state.FirstMonID
		opts.MgrID = d.state.FirstMgrID
	}
	if err := cli.Bootstrap(ctx, host, opts); err != nil {
		return err
	}

	d.logger.Info().Msg("Fetching config and keyrings")
	conf, err := remote.ReadFile(ctx, d.exec, host, cephadm.ConfPath(name), false)
	if err != nil {
		return err
	}
	d.state.SetConfig(conf)
	adminKeyring, err := remote.ReadFile(ctx, d.exec, host, cephadm.AdminKeyringPath(name), false)
	if err != nil {
		return err
	}
	monKeyring, err := remote.ReadFile(ctx, d.exec, host, cephadm.MonKeyringPath(d.state.FSID, d.state.FirstMonID), true)
	if err != nil {
		return err
	}
	d.state.SetKeyrings(adminKeyring, monKeyring)

	pub, err := remote.ReadFile(ctx, d.exec, host, cephadm.PubKeyPath(testdir, name), false)
	if err != nil {
		return err
	}

	d.logger.Info().Msg("Installing pub ssh key for root users")
	install := "sudo install -d -m 0700 /root/.ssh && echo " + remote.Quote(strings.TrimSpace(string(pub))) +
		" | sudo tee -a /root/.ssh/authorized_keys && sudo chmod 0600 /root/.ssh/authorized_keys"
	if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Script(install)); err != nil {
		return err
	}

	if d.job.PtraceAllowed() {
		if _, err := cli.Ceph(ctx, host, "config", "set", "mgr", "mgr/cephadm/allow_ptrace", "true"); err != nil {
			return err
		}
	}

	for _, other := range d.hostNames() {
		if other == host {
			continue
		}
		if err := d.addHost(ctx, cli, other); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) addHost(ctx context.Context, cli *cephadm.CLI, host string) error {
	name := d.state.Name
	d.logger.Info().Str("host", host).Msg("Writing initial conf and keyring")
	if err := remote.WriteFile(ctx, d.exec, host, cephadm.ConfPath(name), d.state.ConfigBlob, remote.WriteOptions{}); err != nil {
		return err
	}
	if err := remote.WriteFile(ctx, d.exec, host, cephadm.AdminKeyringPath(name), d.state.AdminKeyringBlob, remote.WriteOptions{}); err != nil {
		return err
	}

	d.logger.Info().Str("host", host).Msg("Adding host to orchestrator")
	if _, err := cli.Ceph(ctx, host, "orch", "host", "add", host); err != nil {
		return err
	}
	hosts, err := cli.OrchHosts(ctx, host)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		if h.Hostname == host {
			return nil
		}
	}
	return fmt.Errorf("host %s missing from orchestrator host list after add", host)
}

// releaseBootstrap removes bootstrap inputs, stops every registered daemon
// and clears /etc/ceph. Every step runs even when an earlier one failed.
func (d *Deployer) releaseBootstrap(ctx context.Context, cause error) error {
	name := d.state.Name
	testdir := d.job.TestDir
	var errs []error

	d.logger.Info().Msg("Cleaning up testdir files")
	if err := remote.RunAll(ctx, d.exec, d.hostNames(),
		remote.Cmd("rm", "-f", cephadm.SeedConfPath(testdir, name), cephadm.PubKeyPath(testdir, name))); err != nil {
		errs = append(errs, err)
	}

	d.logger.Info().Msg("Stopping all daemons")
	roles, err := d.daemons.ResolveRoleList(nil, types.DaemonTypes, name)
	if err != nil {
		errs = append(errs, err)
	}
	for _, role := range roles {
		h, err := d.daemons.Get(role.Type, role.ID, role.Cluster)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := h.Stop(ctx); err != nil {
			d.logger.Error().Err(err).Str("daemon", role.String()).Msg("Failed to stop daemon")
			errs = append(errs, err)
		}
	}

	if err := remote.RunAll(ctx, d.exec, d.hostNames(),
		remote.Sudo("rm", "-f", cephadm.ConfPath(name), cephadm.AdminKeyringPath(name))); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
