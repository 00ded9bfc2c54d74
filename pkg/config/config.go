package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/cephdeploy/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	// CephadmModeRoot downloads cephadm into the test directory
	CephadmModeRoot = "root"
	// CephadmModePackage uses the cephadm found in PATH
	CephadmModePackage = "cephadm-package"

	DefaultTestDir       = "/home/ubuntu/cephtest"
	DefaultStateDir      = "./cephdeploy-data"
	DefaultGitURL        = "https://github.com/ceph/ceph.git"
	DefaultBranch        = "master"
	DefaultFlavor        = "default"
	DefaultCrushTunables = "default"
)

// Containers selects the container image base
type Containers struct {
	Image string `yaml:"image"`
}

// SSH configures the transport to the hosts
type SSH struct {
	User       string `yaml:"user"`
	Port       int    `yaml:"port"`
	KeyFile    string `yaml:"key_file"`
	KnownHosts string `yaml:"known_hosts"`
	// Local runs every command on this machine instead of over SSH
	Local bool `yaml:"local"`
}

// Convergence bounds every polling loop
type Convergence struct {
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`
}

// Job is the declarative input of one deployment
type Job struct {
	Cluster             string                            `yaml:"cluster"`
	Roleless            bool                              `yaml:"roleless"`
	Image               string                            `yaml:"image"`
	Containers          Containers                        `yaml:"containers"`
	SHA1                string                            `yaml:"sha1"`
	Branch              string                            `yaml:"branch"`
	Flavor              string                            `yaml:"flavor"`
	Conf                map[string]map[string]interface{} `yaml:"conf"`
	SkipDashboard       bool                              `yaml:"skip_dashboard"`
	WaitForHealthy      *bool                             `yaml:"wait-for-healthy"`
	CreateRBDPool       bool                              `yaml:"create_rbd_pool"`
	AddMonsViaDaemonAdd bool                              `yaml:"add_mons_via_daemon_add"`
	MonBindMsgr2        *bool                             `yaml:"mon_bind_msgr2"`
	MonBindAddrvec      *bool                             `yaml:"mon_bind_addrvec"`
	AllowPtrace         *bool                             `yaml:"allow_ptrace"`
	CrushTunables       string                            `yaml:"crush_tunables"`
	LogIgnorelist       []string                          `yaml:"log-ignorelist"`
	CephadmMode         string                            `yaml:"cephadm_mode"`
	CephadmBranch       string                            `yaml:"cephadm_branch"`
	CephadmGitURL       string                            `yaml:"cephadm_git_url"`
	TestDir             string                            `yaml:"testdir"`
	StateDir            string                            `yaml:"state_dir"`
	Convergence         Convergence                       `yaml:"convergence"`
	SSH                 SSH                               `yaml:"ssh"`
	Hosts               []types.Host                      `yaml:"hosts"`

	// DefaultImage is the site-wide base image from defaults.cephadm.containers.image
	DefaultImage string `yaml:"-"`
}

// Load reads a job file, merges its overrides and applies defaults
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a job document.
//
// The document may carry a "defaults" section (site defaults, lowest
// priority) and an "overrides" section whose "ceph" and "cephadm" entries are
// deep-merged over the task configuration, overrides winning.
func Parse(data []byte) (*Job, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}

	defaults, _ := raw["defaults"].(map[string]interface{})
	overrides, _ := raw["overrides"].(map[string]interface{})
	delete(raw, "defaults")
	delete(raw, "overrides")

	for _, key := range []string{"ceph", "cephadm"} {
		if o, ok := overrides[key].(map[string]interface{}); ok {
			DeepMerge(raw, o)
		}
	}

	merged, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode job: %w", err)
	}

	job := &Job{}
	if err := yaml.Unmarshal(merged, job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	job.DefaultImage = lookupString(defaults, "cephadm", "containers", "image")

	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// ApplyDefaults fills unset fields
func (j *Job) ApplyDefaults() {
	if j.Cluster == "" {
		j.Cluster = types.DefaultClusterName
	}
	if j.Flavor == "" {
		j.Flavor = DefaultFlavor
	}
	if j.CephadmMode == "" {
		j.CephadmMode = CephadmModeRoot
	}
	if j.CephadmGitURL == "" {
		j.CephadmGitURL = DefaultGitURL
	}
	if j.CrushTunables == "" {
		j.CrushTunables = DefaultCrushTunables
	}
	if j.TestDir == "" {
		j.TestDir = DefaultTestDir
	}
	if j.StateDir == "" {
		j.StateDir = DefaultStateDir
	}
	if j.Convergence.Interval <= 0 {
		j.Convergence.Interval = time.Second
	}
	if j.Convergence.Attempts <= 0 {
		j.Convergence.Attempts = 180
	}
	if j.SSH.User == "" {
		j.SSH.User = "ubuntu"
	}
}

// Validate checks the job before any phase runs
func (j *Job) Validate() error {
	if j.CephadmMode != CephadmModeRoot && j.CephadmMode != CephadmModePackage {
		return Errorf("cephadm_mode must be %q or %q, got %q", CephadmModeRoot, CephadmModePackage, j.CephadmMode)
	}
	if len(j.Hosts) == 0 {
		return Errorf("no hosts defined")
	}

	seen := make(map[string]bool, len(j.Hosts))
	for _, h := range j.Hosts {
		if h.Name == "" {
			return Errorf("host without a name")
		}
		if seen[h.Name] {
			return Errorf("host %s defined twice", h.Name)
		}
		seen[h.Name] = true
		for _, r := range h.Roles {
			if _, err := types.ParseRole(r); err != nil {
				return Errorf("host %s: %v", h.Name, err)
			}
		}
	}
	return nil
}

// WaitForHealthyEnabled reports whether setup waits for HEALTH_OK (default true)
func (j *Job) WaitForHealthyEnabled() bool { return boolOr(j.WaitForHealthy, true) }

// Msgr2 reports whether monitors bind the v2 protocol (default true)
func (j *Job) Msgr2() bool { return boolOr(j.MonBindMsgr2, true) }

// Addrvec reports whether monitor addresses use the vector format (default true)
func (j *Job) Addrvec() bool { return boolOr(j.MonBindAddrvec, true) }

// PtraceAllowed reports whether mgr/cephadm/allow_ptrace is set (default true)
func (j *Job) PtraceAllowed() bool { return boolOr(j.AllowPtrace, true) }

// CephadmPath is where cephadm lives on every host
func (j *Job) CephadmPath() string {
	if j.CephadmMode == CephadmModePackage {
		return "cephadm"
	}
	return j.TestDir + "/cephadm"
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func lookupString(m map[string]interface{}, path ...string) string {
	cur := m
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return ""
		}
		if i == len(path)-1 {
			s, _ := v.(string)
			return s
		}
		cur, ok = v.(map[string]interface{})
		if !ok {
			return ""
		}
	}
	return ""
}

// DeepMerge merges src into dst recursively; src wins on conflicts
func DeepMerge(dst, src map[string]interface{}) {
	for k, sv := range src {
		if sm, ok := sv.(map[string]interface{}); ok {
			if dm, ok := dst[k].(map[string]interface{}); ok {
				DeepMerge(dm, sm)
				continue
			}
		}
		if sl, ok := sv.([]interface{}); ok {
			if dl, ok := dst[k].([]interface{}); ok {
				dst[k] = append(dl, sl...)
				continue
			}
		}
		dst[k] = sv
	}
}
