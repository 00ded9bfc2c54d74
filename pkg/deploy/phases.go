package deploy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/config"
	"github.com/cuemby/cephdeploy/pkg/phase"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/topology"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/google/uuid"
)

// Phases returns the setup sequence in order
func (d *Deployer) Phases() []phase.Phase {
	bootstrapped := d.state.IsBootstrapped

	phases := []phase.Phase{
		{Name: "initialize", Enter: d.initialize, Skip: bootstrapped},
		{Name: "initial", Exit: d.initialExit},
		{Name: "normalize-hostnames", Enter: d.normalizeHostnames},
		{Name: "download-cephadm", Enter: d.downloadCephadm, Exit: d.removeCluster, Skip: bootstrapped},
		{Name: "cluster-log", Exit: d.checkClusterLog},
		{Name: "bootstrap", Enter: d.bootstrap, Exit: d.releaseBootstrap, Skip: bootstrapped},
		{Name: "crush-tunables", Enter: d.crushTunables},
		{Name: "mons", Enter: d.mons},
		{Name: "distribute-config", Enter: d.distributeConfig, Exit: d.removeConfig},
		{Name: "mgrs", Enter: d.mgrs},
		{Name: "osds", Enter: d.osds},
		{Name: "mdss", Enter: d.mdss},
		{Name: "rgws", Enter: d.rgws},
		{Name: "iscsi", Enter: d.iscsi},
	}
	for _, typ := range types.MonitoringTypes {
		phases = append(phases, phase.Phase{Name: string(typ), Enter: d.monitoring(typ)})
	}
	return append(phases,
		phase.Phase{Name: "clients", Enter: d.clients},
		phase.Phase{Name: "rbd-pool", Enter: d.rbdPool},
	)
}

func (d *Deployer) initialize(ctx context.Context) error {
	if d.state.FSID == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			return fmt.Errorf("failed to generate fsid: %w", err)
		}
		if err := d.state.SetFSID(id.String()); err != nil {
			return err
		}
	}
	d.logger.Info().Str("fsid", d.state.FSID).Msg("Cluster fsid")
	d.state.CephadmPath = d.job.CephadmPath()

	d.logger.Info().Msg("Choosing monitor IPs and ports")
	topo, err := topology.Resolve(d.job.Hosts, d.addrs, topology.Options{
		Cluster:  d.job.Cluster,
		Roleless: d.job.Roleless,
		Msgr2:    d.job.Msgr2(),
		Addrvec:  d.job.Addrvec(),
	})
	if err != nil {
		return err
	}
	topo.Apply(d.state)
	return nil
}

func (d *Deployer) initialExit(ctx context.Context, cause error) error {
	d.logger.Info().Msg("Releasing hosts")
	return nil
}

func (d *Deployer) normalizeHostnames(ctx context.Context) error {
	d.logger.Info().Msg("Normalizing hostnames")
	return remote.RunAll(ctx, d.exec, d.hostNames(), remote.Command{Script: "hostname $(hostname -s)", Sudo: true})
}

var githubURL = regexp.MustCompile(`^https://github\.com/(.+?)(\.git)?/?$`)

func (d *Deployer) downloadCephadm(ctx context.Context) error {
	if d.job.CephadmMode == config.CephadmModePackage {
		return nil
	}

	ref := d.job.CephadmBranch
	if ref == "" {
		ref = d.image.Ref
	}
	if ref == "" {
		ref = config.DefaultBranch
	}
	bin := d.state.CephadmPath
	gitURL := d.job.CephadmGitURL
	d.logger.Info().Str("repo", gitURL).Str("ref", ref).Msg("Downloading cephadm")

	var fetch string
	if m := githubURL.FindStringSubmatch(strings.TrimSpace(gitURL)); m != nil {
		url := "https://raw.githubusercontent.com/" + m[1] + "/" + ref + "/src/cephadm/cephadm"
		fetch = remote.Quote("curl", "--silent", url) + " > " + remote.Quote(bin) + " && " + remote.Quote("ls", "-l", bin)
	} else {
		fetch = remote.Quote("git", "archive", "--remote="+gitURL, ref, "src/cephadm/cephadm") +
			" | " + remote.Quote("tar", "-xO", "src/cephadm/cephadm") + " > " + remote.Quote(bin)
	}
	if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Script(fetch)); err != nil {
		return fmt.Errorf("failed to download cephadm: %w", err)
	}

	check := remote.Quote("test", "-s", bin) +
		" && test $(stat -c%s " + remote.Quote(bin) + ") -gt 1000 && " +
		remote.Quote("chmod", "+x", bin)
	if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Script(check)); err != nil {
		return fmt.Errorf("downloaded cephadm failed the sanity check: %w", err)
	}
	return nil
}

// removeCluster runs rm-cluster on every host. Persisted state is dropped
// only once every host is clean.
func (d *Deployer) removeCluster(ctx context.Context, cause error) error {
	d.logger.Info().Msg("Removing cluster")
	cli := d.cli()

	var errs []error
	for _, host := range d.hostNames() {
		if err := cli.RmCluster(ctx, host); err != nil {
			errs = append(errs, err)
		}
	}

	if d.job.CephadmMode == config.CephadmModeRoot {
		d.logger.Info().Msg("Removing cephadm")
		if err := remote.RunAll(ctx, d.exec, d.hostNames(), remote.Cmd("rm", "-rf", d.state.CephadmPath)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return d.forget()
}

func (d *Deployer) crushTunables(ctx context.Context) error {
	profile := d.job.CrushTunables
	d.logger.Info().Str("profile", profile).Msg("Setting crush tunables")
	_, err := d.cli().Ceph(ctx, d.state.BootstrapHost, "osd", "crush", "tunables", profile)
	return err
}

// distributeConfig writes the final config and admin keyring to every host.
// Hosts already written are cleaned again when a later write fails.
func (d *Deployer) distributeConfig(ctx context.Context) error {
	d.logger.Info().Msg("Distributing final config and client.admin keyring")
	name := d.state.Name
	for _, host := range d.hostNames() {
		err := remote.WriteFile(ctx, d.exec, host, cephadm.ConfPath(name), d.state.ConfigBlob, remote.WriteOptions{Sudo: true})
		if err == nil {
			err = remote.WriteFile(ctx, d.exec, host, cephadm.AdminKeyringPath(name), d.state.AdminKeyringBlob, remote.WriteOptions{Sudo: true})
		}
		if err != nil {
			if cerr := d.removeConfig(context.WithoutCancel(ctx), err); cerr != nil {
				d.logger.Warn().Err(cerr).Msg("Failed to clean up partially distributed config")
			}
			return err
		}
	}
	return nil
}

func (d *Deployer) removeConfig(ctx context.Context, cause error) error {
	name := d.state.Name
	return remote.RunAll(ctx, d.exec, d.hostNames(),
		remote.Sudo("rm", "-f", cephadm.ConfPath(name), cephadm.AdminKeyringPath(name)))
}
