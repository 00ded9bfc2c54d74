package storage

import (
	"errors"
	"testing"

	"github.com/cuemby/cephdeploy/pkg/security"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(name, fsid string) *types.ClusterState {
	s := types.NewClusterState(name)
	_ = s.SetFSID(fsid)
	s.Image = "quay.io/ceph-ci/ceph:abc123"
	s.BootstrapHost = "host1"
	s.FirstMonID = "a"
	s.Hosts = []types.Host{{Name: "host1", Roles: []string{"mon.a", "mgr.x"}}}
	s.Assignments = []types.RoleAssignment{
		{Role: types.Role{Cluster: name, Type: types.ServiceMon, ID: "a"}, Host: "host1"},
	}
	s.ConfigBlob = []byte("[global]\nfsid = " + fsid + "\n")
	s.MarkBootstrapped()
	return s
}

func TestClusterRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)

	want := newState("ceph", "1111")
	require.NoError(t, store.SaveCluster(want))

	got, err := store.GetCluster("ceph")
	require.NoError(t, err)
	assert.Equal(t, "1111", got.FSID)
	assert.True(t, got.IsBootstrapped())
	assert.Equal(t, want.Assignments, got.Assignments)
	assert.Equal(t, want.ConfigBlob, got.ConfigBlob)
	assert.Equal(t, "host1", got.BootstrapHost)
}

func TestGetMissingCluster(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetCluster("nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.GetPhases("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListAndDeleteClusters(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveCluster(newState("ceph", "1111")))
	require.NoError(t, store.SaveCluster(newState("backup", "2222")))
	require.NoError(t, store.SavePhases("ceph", []PhaseRecord{{Name: "bootstrap", State: "entered"}}))

	// a second store on the same directory sees the same data
	other, err := NewBoltStore(dir)
	require.NoError(t, err)
	states, err := other.ListClusters()
	require.NoError(t, err)
	assert.Len(t, states, 2)

	require.NoError(t, store.DeleteCluster("ceph"))
	_, err = other.GetCluster("ceph")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = other.GetPhases("ceph")
	assert.True(t, errors.Is(err, ErrNotFound))

	states, err = store.ListClusters()
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "backup", states[0].Name)
}

func TestPhasesRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)

	phases := []PhaseRecord{
		{Name: "initialize", State: "skipped"},
		{Name: "bootstrap", State: "failed", Error: "bootstrap failed"},
	}
	require.NoError(t, store.SavePhases("ceph", phases))

	got, err := store.GetPhases("ceph")
	require.NoError(t, err)
	assert.Equal(t, phases, got)
}

func TestSealedKeyrings(t *testing.T) {
	dir := t.TempDir()
	sealer, err := security.NewSealerFromPassword("state-key")
	require.NoError(t, err)
	store, err := NewBoltStore(dir, WithSealer(sealer))
	require.NoError(t, err)

	state := newState("ceph", "3333")
	state.SetKeyrings([]byte("[client.admin]\n\tkey = AQBadmin==\n"), []byte("[mon.]\n\tkey = AQBmon==\n"))
	require.NoError(t, store.SaveCluster(state))

	// the live state is untouched
	assert.False(t, state.KeyringsSealed)
	assert.Contains(t, string(state.AdminKeyringBlob), "AQBadmin")

	got, err := store.GetCluster("ceph")
	require.NoError(t, err)
	assert.False(t, got.KeyringsSealed)
	assert.Equal(t, state.AdminKeyringBlob, got.AdminKeyringBlob)
	assert.Equal(t, state.MonKeyringBlob, got.MonKeyringBlob)

	t.Run("without key", func(t *testing.T) {
		plain, err := NewBoltStore(dir)
		require.NoError(t, err)
		_, err = plain.GetCluster("ceph")
		assert.ErrorContains(t, err, "sealed")
	})

	t.Run("wrong key", func(t *testing.T) {
		wrong, _ := security.NewSealerFromPassword("other")
		other, err := NewBoltStore(dir, WithSealer(wrong))
		require.NoError(t, err)
		_, err = other.ListClusters()
		assert.Error(t, err)
	})
}
