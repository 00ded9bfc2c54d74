package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/health"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/topology"
	"github.com/cuemby/cephdeploy/pkg/types"
)

// ordered returns the assignments of typ grouped by host in inventory order
func (d *Deployer) ordered(typ types.ServiceType) []types.RoleAssignment {
	all := d.state.AssignmentsOf(typ)
	out := make([]types.RoleAssignment, 0, len(all))
	for _, host := range d.hostNames() {
		for _, a := range all {
			if a.Host == host {
				out = append(out, a)
			}
		}
	}
	return out
}

// missing returns the assignments whose daemon is not registered yet
func (d *Deployer) missing(assignments []types.RoleAssignment) []types.RoleAssignment {
	var out []types.RoleAssignment
	for _, a := range assignments {
		if !d.daemons.Registered(a.Role.Type, a.Role.ID, d.state.Name) {
			out = append(out, a)
		}
	}
	return out
}

// declared reports whether a service was already given to the orchestrator
// with every one of its daemons placed
func (d *Deployer) declared(service string, missing []types.RoleAssignment) bool {
	if len(missing) > 0 || !d.state.ServiceDeclared(service) {
		return false
	}
	d.logger.Info().Msgf("Service %s already deployed", service)
	return true
}

func (d *Deployer) mons(ctx context.Context) error {
	if d.job.AddMonsViaDaemonAdd {
		return d.addMonsOneByOne(ctx)
	}
	return d.applyMons(ctx)
}

// applyMons declares every monitor in one placement and waits for the
// monitor map to list all of them
func (d *Deployer) applyMons(ctx context.Context) error {
	cli := d.cli()
	assignments := d.ordered(types.ServiceMon)
	missing := d.missing(assignments)

	placement := &topology.Placement{}
	for _, a := range assignments {
		addr, ok := d.state.MonAddr(a.Role)
		if !ok {
			return fmt.Errorf("no address chosen for %s", a.Role)
		}
		placement.AddAddressed(a.Host, addr, a.Role.ID)
	}

	if !d.declared(string(types.ServiceMon), missing) {
		for _, a := range missing {
			d.logger.Info().Str("host", a.Host).Msgf("Adding %s", a.Role)
		}
		if _, err := cli.Ceph(ctx, d.state.BootstrapHost, "orch", "apply", "mon", placement.String()); err != nil {
			return err
		}
		d.state.DeclareService(string(types.ServiceMon))
		for _, a := range missing {
			d.register(a.Host, types.ServiceMon, a.Role.ID)
		}
	}

	if err := d.waitMons(ctx, d.state.BootstrapHost, placement.Len()); err != nil {
		return err
	}
	return d.refreshConfig(ctx)
}

// addMonsOneByOne adds monitors with individual daemon adds, waiting for
// each to join before adding the next
func (d *Deployer) addMonsOneByOne(ctx context.Context) error {
	cli := d.cli()
	num := 0
	added := 0

	for _, a := range d.ordered(types.ServiceMon) {
		num++
		if a.Role.ID == d.state.FirstMonID || d.daemons.Registered(types.ServiceMon, a.Role.ID, d.state.Name) {
			continue
		}
		addr, ok := d.state.MonAddr(a.Role)
		if !ok {
			return fmt.Errorf("no address chosen for %s", a.Role)
		}

		d.logger.Info().Str("host", a.Host).Msgf("Adding %s", a.Role)
		if _, err := cli.Ceph(ctx, a.Host, "orch", "daemon", "add", "mon", topology.DaemonAddTarget(a.Host, addr, a.Role.ID)); err != nil {
			return err
		}
		d.register(a.Host, types.ServiceMon, a.Role.ID)
		added++

		if err := d.waitMons(ctx, a.Host, num); err != nil {
			return err
		}
	}

	if added == 0 {
		if err := d.waitMons(ctx, d.state.BootstrapHost, num); err != nil {
			return err
		}
	}
	return d.refreshConfig(ctx)
}

// waitMons waits for want monitors in the monitor map as seen from host
func (d *Deployer) waitMons(ctx context.Context, host string, want int) error {
	d.logger.Info().Msgf("Waiting for %d mons in monmap", want)
	if err := health.WaitFor(ctx, d.waiter, &health.MonQuorum{Ceph: d.cli(), Host: host, Want: want}); err != nil {
		return err
	}
	d.daemons.Confirm(types.ServiceMon, d.state.Name)
	return nil
}

func (d *Deployer) refreshConfig(ctx context.Context) error {
	d.logger.Info().Msg("Generating final ceph.conf file")
	conf, err := d.cli().Ceph(ctx, d.state.BootstrapHost, "config", "generate-minimal-conf")
	if err != nil {
		return err
	}
	d.state.SetConfig(conf)
	return nil
}

// apply declares a service with a host=id placement and registers the
// daemons it adds. A service already declared with every daemon registered
// is left alone.
func (d *Deployer) apply(ctx context.Context, typ types.ServiceType, args ...string) error {
	assignments := d.ordered(typ)
	if len(assignments) == 0 {
		return nil
	}
	missing := d.missing(assignments)
	if d.declared(string(typ), missing) {
		return nil
	}
	for _, a := range missing {
		d.logger.Info().Str("host", a.Host).Msgf("Adding %s", a.Role)
	}

	cmd := append([]string{"orch", "apply", string(typ)}, args...)
	cmd = append(cmd, topology.PlacementFor(assignments).String())
	if _, err := d.cli().Ceph(ctx, d.state.BootstrapHost, cmd...); err != nil {
		return err
	}
	d.state.DeclareService(string(typ))

	for _, a := range missing {
		d.register(a.Host, typ, a.Role.ID)
	}
	return nil
}

func (d *Deployer) mgrs(ctx context.Context) error {
	return d.apply(ctx, types.ServiceMgr)
}

func (d *Deployer) mdss(ctx context.Context) error {
	return d.apply(ctx, types.ServiceMDS, "all")
}

func (d *Deployer) monitoring(typ types.ServiceType) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return d.apply(ctx, typ)
	}
}

// osds zaps and claims one device per OSD in increasing id order. Devices
// are allocated over every OSD so registered ones keep theirs, but only
// unregistered OSDs are deployed.
func (d *Deployer) osds(ctx context.Context) error {
	osds := d.state.AssignmentsOf(types.ServiceOSD)
	if len(osds) == 0 {
		return nil
	}
	if len(d.missing(osds)) == 0 {
		d.logger.Info().Msg("All OSDs already deployed")
		return nil
	}
	d.logger.Info().Msg("Deploying OSDs")

	pool := make(map[string][]string)
	for _, a := range osds {
		if _, ok := pool[a.Host]; ok {
			continue
		}
		devs, err := d.scratchDevices(ctx, a.Host)
		if err != nil {
			return err
		}
		pool[a.Host] = devs
	}

	allocs, err := topology.AllocateDevices(osds, pool)
	if err != nil {
		return err
	}

	cli := d.cli()
	for _, alloc := range allocs {
		if d.daemons.Registered(types.ServiceOSD, alloc.Role.ID, d.state.Name) {
			d.logger.Debug().Str("host", alloc.Host).Msgf("%s already deployed on %s", alloc.Role, alloc.Device)
			continue
		}
		d.logger.Info().Str("host", alloc.Host).Msgf("Deploying %s with %s", alloc.Role, alloc.Device)
		if _, err := cli.Shell(ctx, alloc.Host, "ceph-volume", "lvm", "zap", alloc.Device); err != nil {
			return err
		}
		if _, err := cli.Ceph(ctx, alloc.Host, "orch", "daemon", "add", "osd", alloc.Host+":"+alloc.ShortDevice()); err != nil {
			return err
		}
		d.register(alloc.Host, types.ServiceOSD, alloc.Role.ID)
	}
	return nil
}

// scratchDevices lists the devices of a host: the inventory's list, or the
// host's /scratch_devs file
func (d *Deployer) scratchDevices(ctx context.Context, host string) ([]string, error) {
	if h, ok := d.state.Host(host); ok && len(h.Devices) > 0 {
		return append([]string(nil), h.Devices...), nil
	}

	out, err := remote.ReadFile(ctx, d.exec, host, "/scratch_devs", false)
	if err != nil {
		return nil, err
	}
	var devs []string
	for _, line := range strings.Split(string(out), "\n") {
		if dev := strings.TrimSpace(line); dev != "" {
			devs = append(devs, dev)
		}
	}
	return devs, nil
}

// rgws groups gateways by their <realm>.<zone> service and declares each
// service separately
func (d *Deployer) rgws(ctx context.Context) error {
	assignments := d.ordered(types.ServiceRGW)
	if len(assignments) == 0 {
		return nil
	}

	var services []string
	groups := make(map[string][]types.RoleAssignment)
	for _, a := range assignments {
		svc := rgwService(a.Role.ID)
		if _, ok := groups[svc]; !ok {
			services = append(services, svc)
		}
		groups[svc] = append(groups[svc], a)
	}

	cli := d.cli()
	for _, svc := range services {
		name := "rgw." + svc
		missing := d.missing(groups[svc])
		if d.declared(name, missing) {
			continue
		}
		for _, a := range missing {
			d.logger.Info().Str("host", a.Host).Msgf("Adding %s", a.Role)
		}
		placement := topology.PlacementFor(groups[svc]).String()
		if _, err := cli.Ceph(ctx, d.state.BootstrapHost, "orch", "apply", "rgw", svc, "--placement", placement); err != nil {
			return err
		}
		d.state.DeclareService(name)
		for _, a := range missing {
			d.register(a.Host, types.ServiceRGW, a.Role.ID)
		}
	}
	return nil
}

func rgwService(id string) string {
	parts := strings.Split(id, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}

const iscsiPool = "iscsi"

// iscsi creates the gateway pool and declares the gateways
func (d *Deployer) iscsi(ctx context.Context) error {
	assignments := d.ordered(types.ServiceISCSI)
	if len(assignments) == 0 {
		return nil
	}
	missing := d.missing(assignments)
	if d.declared(string(types.ServiceISCSI), missing) {
		return nil
	}
	for _, a := range missing {
		d.logger.Info().Str("host", a.Host).Msgf("Adding %s", a.Role)
	}

	cli := d.cli()
	host := d.state.BootstrapHost
	if _, err := cli.Ceph(ctx, host, "osd", "pool", "create", iscsiPool, "3", "3", "replicated"); err != nil {
		return err
	}
	if _, err := cli.Ceph(ctx, host, "osd", "pool", "application", "enable", iscsiPool, "rbd"); err != nil {
		return err
	}
	placement := topology.PlacementFor(assignments).String()
	if _, err := cli.Ceph(ctx, host, "orch", "apply", "iscsi", iscsiPool, "user", "password", "--placement", placement); err != nil {
		return err
	}
	d.state.DeclareService(string(types.ServiceISCSI))
	for _, a := range missing {
		d.register(a.Host, types.ServiceISCSI, a.Role.ID)
	}
	return nil
}

// clients creates a keyring for every client role on its host
func (d *Deployer) clients(ctx context.Context) error {
	d.logger.Info().Msg("Setting up client nodes")
	cli := d.cli()
	for _, a := range d.ordered(types.ServiceClient) {
		entity := a.Role.Name()
		keyring, err := cli.Ceph(ctx, a.Host,
			"auth", "get-or-create", entity,
			"mon", "allow *",
			"osd", "allow *",
			"mds", "allow *",
			"mgr", "allow *",
		)
		if err != nil {
			return err
		}
		path := cephadm.ClientKeyringPath(d.state.Name, entity)
		if err := remote.WriteFile(ctx, d.exec, a.Host, path, keyring, remote.WriteOptions{Sudo: true, Mode: "0644"}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) rbdPool(ctx context.Context) error {
	if !d.job.CreateRBDPool {
		return nil
	}

	d.logger.Info().Msg("Waiting for OSDs to come up")
	if err := d.waitOSDsUp(ctx); err != nil {
		return err
	}

	d.logger.Info().Msg("Creating RBD pool")
	cli := d.cli()
	host := d.state.BootstrapHost
	name := d.state.Name
	if _, err := cli.Shell(ctx, host, "sudo", "ceph", "--cluster", name, "osd", "pool", "create", "rbd", "8"); err != nil {
		return err
	}
	_, err := cli.Shell(ctx, host, "sudo", "ceph", "--cluster", name,
		"osd", "pool", "application", "enable", "rbd", "rbd", "--yes-i-really-mean-it")
	return err
}
