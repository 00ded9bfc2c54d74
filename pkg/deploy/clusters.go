package deploy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/cephdeploy/pkg/storage"
	"github.com/cuemby/cephdeploy/pkg/types"
)

// Clusters owns the state of every cluster handled by this process, keyed by
// cluster name. States are loaded from the store on first use and written
// back on Save.
type Clusters struct {
	store storage.Store

	mu     sync.Mutex
	states map[string]*types.ClusterState
}

// NewClusters creates a registry backed by store. A nil store keeps state in
// memory only.
func NewClusters(store storage.Store) *Clusters {
	return &Clusters{
		store:  store,
		states: make(map[string]*types.ClusterState),
	}
}

// Get returns the state of a cluster, loading it from the store or creating
// an empty one
func (c *Clusters) Get(name string) (*types.ClusterState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.states[name]; ok {
		return s, nil
	}

	var state *types.ClusterState
	if c.store != nil {
		s, err := c.store.GetCluster(name)
		switch {
		case err == nil:
			state = s
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to load state of %s: %w", name, err)
		}
	}
	if state == nil {
		state = types.NewClusterState(name)
	}

	c.states[name] = state
	return state, nil
}

// Save persists the state of a cluster
func (c *Clusters) Save(state *types.ClusterState) error {
	if c.store == nil {
		return nil
	}
	return c.store.SaveCluster(state)
}

// SavePhases persists the phase records of the last run of a cluster
func (c *Clusters) SavePhases(name string, phases []storage.PhaseRecord) error {
	if c.store == nil {
		return nil
	}
	return c.store.SavePhases(name, phases)
}

// Forget drops a removed cluster from memory and from the store
func (c *Clusters) Forget(name string) error {
	c.mu.Lock()
	delete(c.states, name)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.DeleteCluster(name)
}
