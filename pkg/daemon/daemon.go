package daemon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/metrics"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/types"
)

// Handle controls one placed daemon through its systemd unit
type Handle struct {
	Cluster string
	FSID    string
	Host    string
	Type    types.ServiceType
	ID      string

	exec remote.Executor

	mu        sync.Mutex
	running   bool
	confirmed bool
}

// Role returns the daemon's role
func (h *Handle) Role() types.Role {
	return types.Role{Cluster: h.Cluster, Type: h.Type, ID: h.ID}
}

// Unit is the systemd unit cephadm creates for the daemon
func (h *Handle) Unit() string {
	return fmt.Sprintf("ceph-%s@%s.%s", h.FSID, h.Type, h.ID)
}

// Running reports whether the daemon was last seen started
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Confirmed reports whether a convergence check has seen the daemon since it
// was last placed or restarted
func (h *Handle) Confirmed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.confirmed
}

// Confirm marks the daemon as seen healthy
func (h *Handle) Confirm() {
	h.mu.Lock()
	h.confirmed = true
	h.mu.Unlock()
}

// Stop stops the daemon's unit
func (h *Handle) Stop(ctx context.Context) error {
	return h.systemctl(ctx, "stop", false)
}

// Start starts the daemon's unit
func (h *Handle) Start(ctx context.Context) error {
	return h.systemctl(ctx, "start", true)
}

// Restart restarts the daemon's unit
func (h *Handle) Restart(ctx context.Context) error {
	return h.systemctl(ctx, "restart", true)
}

func (h *Handle) systemctl(ctx context.Context, verb string, running bool) error {
	logger := log.WithHost(h.Host)
	logger.Info().Str("daemon", h.Role().String()).Msgf("systemctl %s", verb)
	if _, err := h.exec.Run(ctx, h.Host, remote.Sudo("systemctl", verb, h.Unit())); err != nil {
		return fmt.Errorf("failed to %s %s: %w", verb, h.Role(), err)
	}
	h.mu.Lock()
	h.running = running
	h.confirmed = false
	h.mu.Unlock()
	return nil
}

type key struct {
	cluster string
	typ     types.ServiceType
	id      string
}

// Registry tracks every daemon placed during a run
type Registry struct {
	exec remote.Executor

	mu      sync.RWMutex
	daemons map[key]*Handle
	order   []key
}

// NewRegistry creates an empty registry whose handles run commands through exec
func NewRegistry(exec remote.Executor) *Registry {
	return &Registry{
		exec:    exec,
		daemons: make(map[key]*Handle),
	}
}

// Register records a daemon as started but not yet confirmed healthy.
// Registering the same daemon again replaces its host and fsid.
func (r *Registry) Register(host string, typ types.ServiceType, id, cluster, fsid string) *Handle {
	if cluster == "" {
		cluster = types.DefaultClusterName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{cluster: cluster, typ: typ, id: id}
	h, ok := r.daemons[k]
	if !ok {
		h = &Handle{Cluster: cluster, Type: typ, ID: id, exec: r.exec}
		r.daemons[k] = h
		r.order = append(r.order, k)
		metrics.DaemonsRegistered.WithLabelValues(cluster, string(typ)).Inc()
	}
	h.Host = host
	h.FSID = fsid
	h.mu.Lock()
	h.running = true
	h.confirmed = false
	h.mu.Unlock()

	logger := log.WithCluster(cluster)
	logger.Debug().Str("host", host).Msgf("Registered %s.%s", typ, id)
	return h
}

// Confirm marks every registered daemon of typ in cluster as seen healthy
func (r *Registry) Confirm(typ types.ServiceType, cluster string) {
	if cluster == "" {
		cluster = types.DefaultClusterName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.order {
		if k.cluster == cluster && k.typ == typ {
			r.daemons[k].Confirm()
		}
	}
}

// Registered reports whether a daemon is known to the registry
func (r *Registry) Registered(typ types.ServiceType, id, cluster string) bool {
	_, err := r.Get(typ, id, cluster)
	return err == nil
}

// Get returns the handle of a registered daemon
func (r *Registry) Get(typ types.ServiceType, id, cluster string) (*Handle, error) {
	if cluster == "" {
		cluster = types.DefaultClusterName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.daemons[key{cluster: cluster, typ: typ, id: id}]
	if !ok {
		return nil, fmt.Errorf("daemon %s.%s of cluster %s is not registered", typ, id, cluster)
	}
	return h, nil
}

// Handles returns the daemons of one cluster in registration order
func (r *Registry) Handles(cluster string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Handle
	for _, k := range r.order {
		if k.cluster == cluster {
			out = append(out, r.daemons[k])
		}
	}
	return out
}

// ResolveRoleList expands a role selection into concrete roles.
//
// A nil selection, or the single word "all", selects every registered daemon
// of the known types. "type" or "type.*" selects every registered daemon of
// that type. Anything else must be an exact role; it is returned whether or
// not it is registered so the caller's Get reports the missing daemon.
func (r *Registry) ResolveRoleList(roles []string, known []types.ServiceType, cluster string) ([]types.Role, error) {
	if cluster == "" {
		cluster = types.DefaultClusterName
	}

	isKnown := make(map[types.ServiceType]bool, len(known))
	for _, t := range known {
		isKnown[t] = true
	}

	if roles == nil {
		roles = []string{"all"}
	}

	var out []types.Role
	seen := make(map[types.Role]bool)
	add := func(role types.Role) {
		if !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}

	for _, raw := range roles {
		switch {
		case raw == "all":
			for _, role := range r.registered(cluster, isKnown) {
				add(role)
			}

		case !strings.Contains(raw, ".") || strings.HasSuffix(raw, ".*"):
			typ := types.ServiceType(strings.TrimSuffix(raw, ".*"))
			if !isKnown[typ] {
				return nil, fmt.Errorf("unknown daemon type in %q", raw)
			}
			for _, role := range r.registered(cluster, map[types.ServiceType]bool{typ: true}) {
				add(role)
			}

		default:
			role, err := types.ParseRole(raw)
			if err != nil {
				return nil, err
			}
			if role.Cluster == types.DefaultClusterName && !strings.HasPrefix(raw, types.DefaultClusterName+".") {
				role.Cluster = cluster
			}
			if !isKnown[role.Type] {
				return nil, fmt.Errorf("unknown daemon type in %q", raw)
			}
			add(role)
		}
	}
	return out, nil
}

// registered returns the registered roles of the given types sorted by type, then id
func (r *Registry) registered(cluster string, typs map[types.ServiceType]bool) []types.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.Role
	for _, k := range r.order {
		if k.cluster == cluster && typs[k.typ] {
			out = append(out, types.Role{Cluster: k.cluster, Type: k.typ, ID: k.id})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}
