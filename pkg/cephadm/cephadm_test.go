package cephadm

import (
	"context"
	"strings"
	"testing"

	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = Identity{
	Cluster: "ceph",
	FSID:    "1111-2222",
	Image:   "quay.io/ceph-ci/ceph:abc123",
	Binary:  "/home/ubuntu/cephtest/cephadm",
}

func TestShellCommand(t *testing.T) {
	cli := New(remotetest.New(), testID)

	cmd := cli.ShellCommand(ShellOptions{Extra: []string{"-e", "FOO=bar"}}, "ceph", "orch", "apply", "mgr", "2;host2=y;host3=z")
	assert.True(t, cmd.Sudo)
	assert.Equal(t, []string{
		"/home/ubuntu/cephtest/cephadm",
		"--image", "quay.io/ceph-ci/ceph:abc123",
		"shell",
		"-c", "/etc/ceph/ceph.conf",
		"-k", "/etc/ceph/ceph.client.admin.keyring",
		"--fsid", "1111-2222",
		"-e", "FOO=bar",
		"--",
		"ceph", "orch", "apply", "mgr", "2;host2=y;host3=z",
	}, cmd.Args)
}

func TestCephJSON(t *testing.T) {
	ex := remotetest.New().
		On("mon dump -f json", `{"epoch":3,"mons":[{"rank":0,"name":"a"},{"rank":1,"name":"b"}],"quorum":[0,1]}`).
		On("osd dump -f json", `{"epoch":9,"osds":[{"osd":0,"up":1,"in":1},{"osd":1,"up":0,"in":1}]}`).
		On("health -f json", `{"status":"HEALTH_WARN","checks":{"OSD_DOWN":{"severity":"HEALTH_WARN","summary":{"message":"1 osds down"}}}}`).
		On("orch host ls", `[{"hostname":"host1","addr":"10.0.0.1"},{"hostname":"host2","addr":"10.0.0.2"}]`)
	cli := New(ex, testID)
	ctx := context.Background()

	mons, err := cli.MonDump(ctx, "host1")
	require.NoError(t, err)
	assert.Len(t, mons.Mons, 2)
	assert.Equal(t, "b", mons.Mons[1].Name)

	osds, err := cli.OSDDump(ctx, "host1")
	require.NoError(t, err)
	assert.Equal(t, 1, osds.Up())

	health, err := cli.Health(ctx, "host1")
	require.NoError(t, err)
	assert.Equal(t, "HEALTH_WARN", health.Status)
	assert.Equal(t, "1 osds down", health.Checks["OSD_DOWN"].Summary.Message)

	hosts, err := cli.OrchHosts(ctx, "host1")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "host2", hosts[1].Hostname)

	for _, c := range ex.Calls() {
		assert.Equal(t, "host1", c.Host)
		assert.True(t, strings.HasPrefix(c.Line, "sudo /home/ubuntu/cephtest/cephadm --image "))
	}
}

func TestCephJSONDecodeError(t *testing.T) {
	cli := New(remotetest.New().On("mon dump", "not json"), testID)
	_, err := cli.MonDump(context.Background(), "host1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestCephCommandFailure(t *testing.T) {
	cli := New(remotetest.New().Fail("osd pool create", 22), testID)
	_, err := cli.Ceph(context.Background(), "host1", "osd", "pool", "create", "rbd", "8")

	var cmdErr *remote.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 22, cmdErr.ExitCode)
}

func TestBootstrapCommand(t *testing.T) {
	cli := New(remotetest.New(), testID)

	tests := []struct {
		name    string
		opts    BootstrapOptions
		want    []string
		notWant []string
	}{
		{
			name: "declared roles with plain address",
			opts: BootstrapOptions{
				SeedConfig: "/home/ubuntu/cephtest/seed.ceph.conf",
				PubKey:     "/home/ubuntu/cephtest/ceph.pub",
				MonID:      "a",
				MgrID:      "x",
				MonAddr:    "10.0.0.1",
			},
			want: []string{
				"bootstrap --fsid 1111-2222",
				"--config /home/ubuntu/cephtest/seed.ceph.conf",
				"--output-config /etc/ceph/ceph.conf",
				"--output-keyring /etc/ceph/ceph.client.admin.keyring",
				"--mon-id a --mgr-id x --orphan-initial-daemons --skip-monitoring-stack",
				"--mon-ip 10.0.0.1",
				"&& sudo chmod +r /etc/ceph/ceph.client.admin.keyring",
			},
			notWant: []string{"--skip-dashboard", "--mon-addrv"},
		},
		{
			name: "roleless with address vector",
			opts: BootstrapOptions{
				MonAddr:       "[v2:10.0.0.1:3301,v1:10.0.0.1:6790]",
				SkipDashboard: true,
			},
			want: []string{
				`--mon-addrv \[v2:10.0.0.1:3301,v1:10.0.0.1:6790]`,
				"--skip-dashboard",
			},
			notWant: []string{"--mon-id", "--orphan-initial-daemons", "--mon-ip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := cli.BootstrapCommand(tt.opts).Script
			assert.True(t, strings.HasPrefix(script, "sudo /home/ubuntu/cephtest/cephadm --image quay.io/ceph-ci/ceph:abc123 -v bootstrap"))
			for _, w := range tt.want {
				assert.Contains(t, script, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, script, w)
			}
		})
	}
}

func TestRmCluster(t *testing.T) {
	ex := remotetest.New()
	require.NoError(t, New(ex, testID).RmCluster(context.Background(), "host2"))
	assert.Equal(t, []string{"sudo /home/ubuntu/cephtest/cephadm rm-cluster --fsid 1111-2222 --force"}, ex.Lines("rm-cluster"))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/etc/ceph/backup.client.3.keyring", ClientKeyringPath("backup", "client.3"))
	assert.Equal(t, "/var/lib/ceph/f/mon.a/keyring", MonKeyringPath("f", "a"))
	assert.Equal(t, "/t/seed.ceph.conf", SeedConfPath("/t", "ceph"))
	assert.Equal(t, "/t/ceph.pub", PubKeyPath("/t", "ceph"))
	assert.Equal(t, "/var/log/ceph/f/ceph.log", ClusterLogPath("f"))
}
