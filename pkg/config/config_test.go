package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

const sampleJob = `
cluster: ceph
containers:
  image: quay.io/ceph-ci/ceph
sha1: abc123
conf:
  global:
    osd pool default size: 2
  osd:
    debug osd: 20
log-ignorelist:
  - CEPHADM_STRAY_DAEMON
hosts:
  - name: host1
    address: 10.0.0.1
    roles: [mon.a, mgr.x, osd.0]
    devices: [/dev/vdb]
  - name: host2
    address: 10.0.0.2
    roles: [mon.b, osd.1]
defaults:
  cephadm:
    containers:
      image: quay.io/ceph/ceph
overrides:
  ceph:
    log-ignorelist:
      - OSD_DOWN
  cephadm:
    sha1: def456
    conf:
      osd:
        debug ms: 1
`

func TestParseMergesOverrides(t *testing.T) {
	job, err := Parse([]byte(sampleJob))
	require.NoError(t, err)

	assert.Equal(t, "ceph", job.Cluster)
	assert.Equal(t, "def456", job.SHA1)
	assert.Equal(t, []string{"CEPHADM_STRAY_DAEMON", "OSD_DOWN"}, job.LogIgnorelist)
	assert.Equal(t, 20, job.Conf["osd"]["debug osd"])
	assert.Equal(t, 1, job.Conf["osd"]["debug ms"])
	assert.Equal(t, "quay.io/ceph/ceph", job.DefaultImage)
	require.Len(t, job.Hosts, 2)
	assert.Equal(t, []string{"mon.a", "mgr.x", "osd.0"}, job.Hosts[0].Roles)
	assert.Equal(t, []string{"/dev/vdb"}, job.Hosts[0].Devices)
}

func TestParseDefaults(t *testing.T) {
	job, err := Parse([]byte("hosts:\n  - name: host1\n"))
	require.NoError(t, err)

	assert.Equal(t, "ceph", job.Cluster)
	assert.Equal(t, CephadmModeRoot, job.CephadmMode)
	assert.Equal(t, DefaultTestDir+"/cephadm", job.CephadmPath())
	assert.True(t, job.WaitForHealthyEnabled())
	assert.True(t, job.Msgr2())
	assert.True(t, job.Addrvec())
	assert.True(t, job.PtraceAllowed())
	assert.Equal(t, time.Second, job.Convergence.Interval)
	assert.Equal(t, 180, job.Convergence.Attempts)
}

func TestParseRejectsInvalidJobs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "no hosts", doc: "cluster: ceph\n"},
		{name: "bad mode", doc: "cephadm_mode: wat\nhosts:\n  - name: h\n"},
		{name: "duplicate host", doc: "hosts:\n  - name: h\n  - name: h\n"},
		{name: "bad role", doc: "hosts:\n  - name: h\n    roles: [mon]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestResolveImage(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		want    ImageRef
		wantErr bool
	}{
		{
			name: "explicit image wins",
			job:  Job{Image: "repo/ceph:custom", SHA1: "abc123", Containers: Containers{Image: "repo/ceph"}},
			want: ImageRef{Image: "repo/ceph:custom", Ref: "abc123"},
		},
		{
			name: "sha1 with crimson flavor",
			job:  Job{SHA1: "abc123", Flavor: "crimson", Containers: Containers{Image: "repo/ceph"}},
			want: ImageRef{Image: "repo/ceph:abc123-crimson", Ref: "abc123"},
		},
		{
			name: "sha1 with default flavor",
			job:  Job{SHA1: "abc123", Flavor: "default", Containers: Containers{Image: "repo/ceph"}},
			want: ImageRef{Image: "repo/ceph:abc123", Ref: "abc123"},
		},
		{
			name: "branch fallback",
			job:  Job{Branch: "reef", DefaultImage: "repo/ceph"},
			want: ImageRef{Image: "repo/ceph:reef", Ref: "reef"},
		},
		{
			name: "master when nothing set",
			job:  Job{DefaultImage: "repo/ceph"},
			want: ImageRef{Image: "repo/ceph:master", Ref: "master"},
		},
		{
			name:    "no image available",
			job:     Job{SHA1: "abc123"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.job.ResolveImage()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeedConfig(t *testing.T) {
	job := &Job{
		Cluster: "ceph",
		Conf: map[string]map[string]interface{}{
			"global":     {"osd pool default size": 2},
			"client.foo": {"debug rgw": 20},
		},
	}

	data, err := job.SeedConfig("f00d-fsid")
	require.NoError(t, err)

	cfg, err := ini.Load(data)
	require.NoError(t, err)
	assert.Equal(t, "f00d-fsid", cfg.Section("global").Key("fsid").String())
	assert.Equal(t, "2", cfg.Section("global").Key("osd pool default size").String())
	assert.Equal(t, "20", cfg.Section("client.foo").Key("debug rgw").String())
	assert.Equal(t, "true", cfg.Section("global").Key("mon allow pool delete").String())
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"l": []interface{}{"one"},
		"s": "keep",
	}
	DeepMerge(dst, map[string]interface{}{
		"a": map[string]interface{}{"y": 3, "z": 4},
		"l": []interface{}{"two"},
		"n": true,
	})

	assert.Equal(t, map[string]interface{}{"x": 1, "y": 3, "z": 4}, dst["a"])
	assert.Equal(t, []interface{}{"one", "two"}, dst["l"])
	assert.Equal(t, "keep", dst["s"])
	assert.Equal(t, true, dst["n"])
}
