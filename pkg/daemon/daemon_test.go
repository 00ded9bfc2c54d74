package daemon

import (
	"context"
	"testing"

	"github.com/cuemby/cephdeploy/pkg/remote/remotetest"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fsid = "00000000-0000-0000-0000-000000000001"

func newRegistry() (*Registry, *remotetest.Executor) {
	ex := remotetest.New()
	r := NewRegistry(ex)
	r.Register("host1", types.ServiceMon, "a", "ceph", fsid)
	r.Register("host1", types.ServiceMgr, "x", "ceph", fsid)
	r.Register("host1", types.ServiceOSD, "1", "ceph", fsid)
	r.Register("host2", types.ServiceOSD, "0", "ceph", fsid)
	r.Register("host2", types.ServiceMDS, "a", "ceph", fsid)
	r.Register("host3", types.ServiceMon, "a", "backup", fsid)
	return r, ex
}

func TestRegisterAndGet(t *testing.T) {
	r, _ := newRegistry()

	h, err := r.Get(types.ServiceOSD, "0", "ceph")
	require.NoError(t, err)
	assert.Equal(t, "host2", h.Host)
	assert.True(t, h.Running())
	assert.Equal(t, "ceph-"+fsid+"@osd.0", h.Unit())

	_, err = r.Get(types.ServiceOSD, "7", "ceph")
	assert.Error(t, err)

	again := r.Register("host3", types.ServiceOSD, "0", "", fsid)
	assert.Same(t, h, again)
	assert.Equal(t, "host3", h.Host)
	assert.Len(t, r.Handles("ceph"), 5)
	assert.Len(t, r.Handles("backup"), 1)
}

func TestHandleSystemctl(t *testing.T) {
	r, ex := newRegistry()
	h, err := r.Get(types.ServiceMon, "a", "ceph")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.Stop(ctx))
	assert.False(t, h.Running())
	require.NoError(t, h.Start(ctx))
	assert.True(t, h.Running())
	require.NoError(t, h.Restart(ctx))

	calls := ex.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "host1", calls[0].Host)
	assert.True(t, calls[0].Sudo)
	assert.Equal(t, "sudo systemctl stop ceph-"+fsid+"@mon.a", calls[0].Line)
	assert.Equal(t, "sudo systemctl start ceph-"+fsid+"@mon.a", calls[1].Line)
	assert.Equal(t, "sudo systemctl restart ceph-"+fsid+"@mon.a", calls[2].Line)
}

func TestHandleStopFailure(t *testing.T) {
	r, ex := newRegistry()
	ex.Fail("systemctl stop", 5)

	h, err := r.Get(types.ServiceMgr, "x", "ceph")
	require.NoError(t, err)
	err = h.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mgr.x")
	assert.True(t, h.Running())
}

func TestConfirm(t *testing.T) {
	r, _ := newRegistry()
	osd0, err := r.Get(types.ServiceOSD, "0", "ceph")
	require.NoError(t, err)
	osd1, err := r.Get(types.ServiceOSD, "1", "ceph")
	require.NoError(t, err)
	mon, err := r.Get(types.ServiceMon, "a", "ceph")
	require.NoError(t, err)

	assert.True(t, osd0.Running())
	assert.False(t, osd0.Confirmed())

	r.Confirm(types.ServiceOSD, "ceph")
	assert.True(t, osd0.Confirmed())
	assert.True(t, osd1.Confirmed())
	assert.False(t, mon.Confirmed())

	// a restart needs a fresh confirmation
	require.NoError(t, osd0.Restart(context.Background()))
	assert.False(t, osd0.Confirmed())
	assert.True(t, osd1.Confirmed())

	// so does placing the daemon again
	r.Register("host3", types.ServiceOSD, "1", "ceph", fsid)
	assert.False(t, osd1.Confirmed())

	assert.True(t, r.Registered(types.ServiceOSD, "1", "ceph"))
	assert.True(t, r.Registered(types.ServiceMon, "a", ""))
	assert.False(t, r.Registered(types.ServiceOSD, "9", "ceph"))
}

func TestResolveRoleList(t *testing.T) {
	r, _ := newRegistry()
	known := []types.ServiceType{types.ServiceMon, types.ServiceMgr, types.ServiceOSD, types.ServiceMDS}

	tests := []struct {
		name    string
		roles   []string
		cluster string
		want    []string
		wantErr bool
	}{
		{
			name:    "nil selects everything registered",
			roles:   nil,
			cluster: "ceph",
			want:    []string{"mds.a", "mgr.x", "mon.a", "osd.0", "osd.1"},
		},
		{
			name:    "all",
			roles:   []string{"all"},
			cluster: "ceph",
			want:    []string{"mds.a", "mgr.x", "mon.a", "osd.0", "osd.1"},
		},
		{
			name:    "wildcard",
			roles:   []string{"osd.*"},
			cluster: "ceph",
			want:    []string{"osd.0", "osd.1"},
		},
		{
			name:    "bare type",
			roles:   []string{"mds"},
			cluster: "ceph",
			want:    []string{"mds.a"},
		},
		{
			name:    "exact roles kept in order without duplicates",
			roles:   []string{"osd.1", "mon.a", "osd.1"},
			cluster: "ceph",
			want:    []string{"osd.1", "mon.a"},
		},
		{
			name:    "unregistered exact role is returned",
			roles:   []string{"osd.9"},
			cluster: "ceph",
			want:    []string{"osd.9"},
		},
		{
			name:    "other cluster",
			roles:   nil,
			cluster: "backup",
			want:    []string{"backup.mon.a"},
		},
		{
			name:    "unknown type",
			roles:   []string{"rgw.*"},
			cluster: "ceph",
			wantErr: true,
		},
		{
			name:    "unknown exact type",
			roles:   []string{"client.0"},
			cluster: "ceph",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles, err := r.ResolveRoleList(tt.roles, known, tt.cluster)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, role := range roles {
				got = append(got, role.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
