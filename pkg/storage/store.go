package storage

import (
	"errors"
	"time"

	"github.com/cuemby/cephdeploy/pkg/types"
)

// ErrNotFound is returned when no state is stored for a cluster
var ErrNotFound = errors.New("not found")

// PhaseRecord is the persisted outcome of one phase of the last run
type PhaseRecord struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for cluster state storage
type Store interface {
	// Cluster state
	SaveCluster(state *types.ClusterState) error
	GetCluster(name string) (*types.ClusterState, error)
	ListClusters() ([]*types.ClusterState, error)
	DeleteCluster(name string) error

	// Phases of the last run, keyed by cluster name
	SavePhases(cluster string, phases []PhaseRecord) error
	GetPhases(cluster string) ([]PhaseRecord, error)
}
