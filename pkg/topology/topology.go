package topology

import (
	"fmt"
	"sort"

	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/types"
)

// AddressResolver returns the primary network address of a host
type AddressResolver interface {
	PeerAddress(host string) (string, error)
}

// StaticAddresses resolves hosts from a fixed map, falling back to the host name
type StaticAddresses map[string]string

// PeerAddress implements AddressResolver
func (s StaticAddresses) PeerAddress(host string) (string, error) {
	if addr, ok := s[host]; ok && addr != "" {
		return addr, nil
	}
	return "", fmt.Errorf("no address known for host %s", host)
}

// Options controls resolution
type Options struct {
	Cluster  string
	Roleless bool
	// Msgr2 binds monitors to the v2 wire protocol
	Msgr2 bool
	// Addrvec renders monitor addresses as [v2:...,v1:...] vectors
	Addrvec bool
}

// Topology is the resolved placement of every daemon
type Topology struct {
	Cluster       string
	Roleless      bool
	Hosts         []types.Host
	Assignments   []types.RoleAssignment
	MonEndpoints  []types.MonEndpoint
	BootstrapHost string
	FirstMon      types.Role
	// FirstMgr is empty in roleless mode
	FirstMgr string
}

// Resolve turns declared host roles into role assignments and picks the
// bootstrap host.
//
// In roleless mode one monitor named after each host is fabricated and the
// first host is the bootstrap host. Otherwise the monitor with the smallest
// role string is the first monitor, its host is the bootstrap host, and a
// manager must be declared on that same host.
func Resolve(hosts []types.Host, addrs AddressResolver, opts Options) (*Topology, error) {
	if opts.Cluster == "" {
		opts.Cluster = types.DefaultClusterName
	}
	if len(hosts) == 0 {
		return nil, topologyErrorf("no hosts")
	}

	logger := log.WithCluster(opts.Cluster)

	topo := &Topology{
		Cluster:  opts.Cluster,
		Roleless: opts.Roleless,
		Hosts:    make([]types.Host, 0, len(hosts)),
	}

	seen := make(map[string]string)
	for _, h := range hosts {
		host := h
		host.Roles = append([]string(nil), h.Roles...)
		if opts.Roleless {
			host.Roles = append(host.Roles, "mon."+h.Name)
		}
		topo.Hosts = append(topo.Hosts, host)

		for _, raw := range host.Roles {
			role, err := types.ParseRole(raw)
			if err != nil {
				return nil, topologyErrorf("host %s: %v", h.Name, err)
			}
			if role.Cluster != opts.Cluster {
				continue
			}
			if !role.Type.Valid() {
				return nil, topologyErrorf("host %s: unknown service type in role %s", h.Name, raw)
			}
			key := role.Name()
			if other, dup := seen[key]; dup {
				return nil, allocationErrorf("%s is declared on both %s and %s", role, other, h.Name)
			}
			seen[key] = h.Name
			topo.Assignments = append(topo.Assignments, types.RoleAssignment{Role: role, Host: h.Name})
		}
	}
	if opts.Roleless {
		logger.Info().Msg("No mon roles; fabricating mons")
	}

	if _, err := OSDOrder(topo.Assignments); err != nil {
		return nil, err
	}

	endpoints, err := monEndpoints(topo.Hosts, topo.Assignments, addrs, opts)
	if err != nil {
		return nil, err
	}
	topo.MonEndpoints = endpoints
	logger.Info().Interface("mons", endpoints).Msg("Monitor IPs")

	if opts.Roleless {
		first := topo.Hosts[0].Name
		topo.BootstrapHost = first
		topo.FirstMon = types.Role{Cluster: opts.Cluster, Type: types.ServiceMon, ID: first}
		return topo, nil
	}

	mons := topo.of(types.ServiceMon)
	if len(mons) == 0 {
		return nil, topologyErrorf("no monitor roles declared for cluster %s", opts.Cluster)
	}
	sort.Slice(mons, func(i, j int) bool {
		return mons[i].Role.String() < mons[j].Role.String()
	})
	first := mons[0]
	topo.FirstMon = first.Role
	topo.BootstrapHost = first.Host
	logger.Info().Msgf("First mon is mon.%s on %s", first.Role.ID, first.Host)

	var mgrs []types.RoleAssignment
	for _, a := range topo.of(types.ServiceMgr) {
		if a.Host == first.Host {
			mgrs = append(mgrs, a)
		}
	}
	if len(mgrs) == 0 {
		return nil, topologyErrorf("no mgrs on the same host as first mon %s", first.Role.ID)
	}
	sort.Slice(mgrs, func(i, j int) bool {
		return mgrs[i].Role.String() < mgrs[j].Role.String()
	})
	topo.FirstMgr = mgrs[0].Role.ID
	logger.Info().Msgf("First mgr is %s", topo.FirstMgr)

	return topo, nil
}

func (t *Topology) of(typ types.ServiceType) []types.RoleAssignment {
	var out []types.RoleAssignment
	for _, a := range t.Assignments {
		if a.Role.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// Apply copies the resolution into the cluster state
func (t *Topology) Apply(state *types.ClusterState) {
	state.Roleless = t.Roleless
	state.Hosts = t.Hosts
	state.Assignments = t.Assignments
	state.MonEndpoints = t.MonEndpoints
	state.BootstrapHost = t.BootstrapHost
	state.FirstMonID = t.FirstMon.ID
	state.FirstMonRole = t.FirstMon.String()
	state.FirstMgrID = t.FirstMgr
}

// OSDOrder returns the storage daemon assignments sorted by id, failing
// unless the ids are exactly 0..N-1.
func OSDOrder(assignments []types.RoleAssignment) ([]types.RoleAssignment, error) {
	type numbered struct {
		id int
		a  types.RoleAssignment
	}

	var osds []numbered
	for _, a := range assignments {
		if a.Role.Type != types.ServiceOSD {
			continue
		}
		id, err := a.Role.NumericID()
		if err != nil {
			return nil, allocationErrorf("%v", err)
		}
		osds = append(osds, numbered{id: id, a: a})
	}
	sort.Slice(osds, func(i, j int) bool { return osds[i].id < osds[j].id })

	out := make([]types.RoleAssignment, 0, len(osds))
	for cur, o := range osds {
		if o.id != cur {
			return nil, allocationErrorf("osd ids must be contiguous from 0: expected osd.%d, found osd.%d", cur, o.id)
		}
		out = append(out, o.a)
	}
	return out, nil
}
