package types

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultClusterName is used when a job does not name its cluster
const DefaultClusterName = "ceph"

// ServiceType identifies a kind of daemon the orchestrator can place
type ServiceType string

const (
	ServiceMon          ServiceType = "mon"
	ServiceMgr          ServiceType = "mgr"
	ServiceOSD          ServiceType = "osd"
	ServiceMDS          ServiceType = "mds"
	ServiceRGW          ServiceType = "rgw"
	ServiceISCSI        ServiceType = "iscsi"
	ServicePrometheus   ServiceType = "prometheus"
	ServiceNodeExporter ServiceType = "node-exporter"
	ServiceAlertmanager ServiceType = "alertmanager"
	ServiceGrafana      ServiceType = "grafana"
	ServiceClient       ServiceType = "client"
)

var knownServiceTypes = map[ServiceType]bool{
	ServiceMon:          true,
	ServiceMgr:          true,
	ServiceOSD:          true,
	ServiceMDS:          true,
	ServiceRGW:          true,
	ServiceISCSI:        true,
	ServicePrometheus:   true,
	ServiceNodeExporter: true,
	ServiceAlertmanager: true,
	ServiceGrafana:      true,
	ServiceClient:       true,
}

// DaemonTypes are the service types whose daemons are stopped individually at teardown
var DaemonTypes = []ServiceType{
	ServiceMon,
	ServiceMgr,
	ServiceOSD,
	ServiceMDS,
	ServiceRGW,
	ServicePrometheus,
}

// MonitoringTypes are rolled out in this order after the gateways
var MonitoringTypes = []ServiceType{
	ServicePrometheus,
	ServiceNodeExporter,
	ServiceAlertmanager,
	ServiceGrafana,
}

// Valid reports whether t is a service type this tool knows how to place
func (t ServiceType) Valid() bool {
	return knownServiceTypes[t]
}

// Role is a parsed role string such as "mon.a", "osd.3" or "backup.mgr.x"
type Role struct {
	Cluster string      `json:"cluster"`
	Type    ServiceType `json:"type"`
	ID      string      `json:"id"`
}

// ParseRole parses a declared role string.
//
// A leading cluster name is recognised when the string has more than one dot
// and its first component is not itself a service type, so "rgw.realm.zone.a"
// is an rgw role in the default cluster while "backup.osd.0" belongs to the
// "backup" cluster.
func ParseRole(s string) (Role, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Role{}, fmt.Errorf("malformed role %q", s)
	}

	cluster := DefaultClusterName
	typ, id := parts[0], parts[1]
	if strings.Count(s, ".") > 1 && !ServiceType(typ).Valid() {
		rest := strings.SplitN(parts[1], ".", 2)
		if len(rest) != 2 || rest[1] == "" {
			return Role{}, fmt.Errorf("malformed role %q", s)
		}
		cluster, typ, id = parts[0], rest[0], rest[1]
	}

	return Role{Cluster: cluster, Type: ServiceType(typ), ID: id}, nil
}

// String renders the role the way it is declared, omitting the default cluster
func (r Role) String() string {
	if r.Cluster == "" || r.Cluster == DefaultClusterName {
		return string(r.Type) + "." + r.ID
	}
	return r.Cluster + "." + string(r.Type) + "." + r.ID
}

// Name is the daemon name without any cluster prefix (e.g. "osd.3")
func (r Role) Name() string {
	return string(r.Type) + "." + r.ID
}

// NumericID returns the instance id as an integer (osd ids)
func (r Role) NumericID() (int, error) {
	n, err := strconv.Atoi(r.ID)
	if err != nil {
		return 0, fmt.Errorf("role %s does not have a numeric id", r)
	}
	return n, nil
}

// RoleAssignment binds one numbered service instance to a host
type RoleAssignment struct {
	Role Role   `json:"role"`
	Host string `json:"host"`
}

// Host is one machine of the test cluster
type Host struct {
	Name    string   `json:"name" yaml:"name"`
	Address string   `json:"address" yaml:"address"`
	User    string   `json:"user,omitempty" yaml:"user,omitempty"`
	Roles   []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Devices []string `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// MonEndpoint is the bind address chosen for one monitor role
type MonEndpoint struct {
	Role Role   `json:"role"`
	Host string `json:"host"`
	Addr string `json:"addr"`
}

// DaemonRef identifies a daemon that has been placed on a host
type DaemonRef struct {
	Host string      `json:"host"`
	Type ServiceType `json:"type"`
	ID   string      `json:"id"`
}

// ClusterState is everything known about one cluster for the lifetime of a run
type ClusterState struct {
	mu sync.Mutex

	Name          string           `json:"name"`
	FSID          string           `json:"fsid"`
	Bootstrapped  bool             `json:"bootstrapped"`
	Image         string           `json:"image"`
	CephadmPath   string           `json:"cephadm_path"`
	BootstrapHost string           `json:"bootstrap_host"`
	FirstMonID    string           `json:"first_mon_id"`
	FirstMonRole  string           `json:"first_mon_role"`
	FirstMgrID    string           `json:"first_mgr_id,omitempty"`
	Roleless      bool             `json:"roleless"`
	Hosts         []Host           `json:"hosts"`
	Assignments   []RoleAssignment `json:"assignments"`
	MonEndpoints  []MonEndpoint    `json:"mon_endpoints"`
	Daemons       []DaemonRef      `json:"daemons,omitempty"`
	// Services lists the orchestrator services whose placement has been declared
	Services []string `json:"services,omitempty"`

	ConfigBlob       []byte `json:"config_blob,omitempty"`
	AdminKeyringBlob []byte `json:"admin_keyring_blob,omitempty"`
	MonKeyringBlob   []byte `json:"mon_keyring_blob,omitempty"`
	// KeyringsSealed is set on stored copies whose keyring blobs are encrypted
	KeyringsSealed bool `json:"keyrings_sealed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClusterState creates an empty, not yet bootstrapped state
func NewClusterState(name string) *ClusterState {
	if name == "" {
		name = DefaultClusterName
	}
	now := time.Now()
	return &ClusterState{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetFSID assigns the cluster identity. It may only be assigned once.
func (s *ClusterState) SetFSID(fsid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FSID != "" && s.FSID != fsid {
		return fmt.Errorf("cluster %s already has fsid %s", s.Name, s.FSID)
	}
	s.FSID = fsid
	s.UpdatedAt = time.Now()
	return nil
}

// MarkBootstrapped records that the first monitor exists. The flag is never cleared.
func (s *ClusterState) MarkBootstrapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bootstrapped = true
	s.UpdatedAt = time.Now()
}

// IsBootstrapped reports whether bootstrap already ran for this cluster
func (s *ClusterState) IsBootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Bootstrapped
}

// HostNames returns host names in inventory order
func (s *ClusterState) HostNames() []string {
	names := make([]string, 0, len(s.Hosts))
	for _, h := range s.Hosts {
		names = append(names, h.Name)
	}
	return names
}

// Host looks up a host by name
func (s *ClusterState) Host(name string) (Host, bool) {
	for _, h := range s.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// AssignmentsOf returns the assignments of one service type in resolution order
func (s *ClusterState) AssignmentsOf(t ServiceType) []RoleAssignment {
	var out []RoleAssignment
	for _, a := range s.Assignments {
		if a.Role.Type == t && a.Role.Cluster == s.Name {
			out = append(out, a)
		}
	}
	return out
}

// MonAddr returns the bind address chosen for a monitor role
func (s *ClusterState) MonAddr(role Role) (string, bool) {
	for _, ep := range s.MonEndpoints {
		if ep.Role == role {
			return ep.Addr, true
		}
	}
	return "", false
}

// RecordDaemon remembers a placed daemon so teardown can find it after a restart of the driver
func (s *ClusterState) RecordDaemon(ref DaemonRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.Daemons {
		if d == ref {
			return
		}
	}
	s.Daemons = append(s.Daemons, ref)
	s.UpdatedAt = time.Now()
}

// DeclareService remembers that the orchestrator was given a service's placement
func (s *ClusterState) DeclareService(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.Services {
		if svc == name {
			return
		}
	}
	s.Services = append(s.Services, name)
	s.UpdatedAt = time.Now()
}

// ServiceDeclared reports whether DeclareService was called for name
func (s *ClusterState) ServiceDeclared(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.Services {
		if svc == name {
			return true
		}
	}
	return false
}

// SetConfig replaces the cluster config blob
func (s *ClusterState) SetConfig(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConfigBlob = blob
	s.UpdatedAt = time.Now()
}

// SetKeyrings stores the admin and monitor keyrings captured at bootstrap
func (s *ClusterState) SetKeyrings(admin, mon []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AdminKeyringBlob = admin
	s.MonKeyringBlob = mon
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy safe to serialize while the run continues
func (s *ClusterState) Snapshot() *ClusterState {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &ClusterState{
		Name:             s.Name,
		FSID:             s.FSID,
		Bootstrapped:     s.Bootstrapped,
		Image:            s.Image,
		CephadmPath:      s.CephadmPath,
		BootstrapHost:    s.BootstrapHost,
		FirstMonID:       s.FirstMonID,
		FirstMonRole:     s.FirstMonRole,
		FirstMgrID:       s.FirstMgrID,
		Roleless:         s.Roleless,
		Hosts:            append([]Host(nil), s.Hosts...),
		Assignments:      append([]RoleAssignment(nil), s.Assignments...),
		MonEndpoints:     append([]MonEndpoint(nil), s.MonEndpoints...),
		Daemons:          append([]DaemonRef(nil), s.Daemons...),
		Services:         append([]string(nil), s.Services...),
		ConfigBlob:       append([]byte(nil), s.ConfigBlob...),
		AdminKeyringBlob: append([]byte(nil), s.AdminKeyringBlob...),
		MonKeyringBlob:   append([]byte(nil), s.MonKeyringBlob...),
		KeyringsSealed:   s.KeyringsSealed,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	return c
}
