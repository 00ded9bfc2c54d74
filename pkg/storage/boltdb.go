package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/cephdeploy/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketClusters = []byte("clusters")
	bucketPhases   = []byte("phases")
)

// DefaultLockTimeout bounds how long an operation waits for another process
// holding the database
const DefaultLockTimeout = 10 * time.Second

// BoltStore implements Store using BoltDB. The database file is opened for
// each operation and closed again, so several processes can share it.
type BoltStore struct {
	path    string
	timeout time.Duration
	sealer  Sealer
}

// Sealer encrypts secrets before they are written
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Option configures a BoltStore
type Option func(*BoltStore)

// WithSealer encrypts the keyrings of every saved cluster
func WithSealer(sealer Sealer) Option {
	return func(s *BoltStore) {
		s.sealer = sealer
	}
}

// WithLockTimeout overrides DefaultLockTimeout
func WithLockTimeout(d time.Duration) Option {
	return func(s *BoltStore) {
		s.timeout = d
	}
}

// NewBoltStore creates a BoltDB-backed store under dataDir
func NewBoltStore(dataDir string, opts ...Option) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &BoltStore{
		path:    filepath.Join(dataDir, "cephdeploy.db"),
		timeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	err := s.update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketClusters, bucketPhases} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file
func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

// Cluster operations
func (s *BoltStore) SaveCluster(state *types.ClusterState) error {
	snap := state.Snapshot()
	if s.sealer != nil {
		if err := s.seal(snap); err != nil {
			return fmt.Errorf("failed to seal keyrings of %s: %w", state.Name, err)
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).Put([]byte(state.Name), data)
	})
}

func (s *BoltStore) GetCluster(name string) (*types.ClusterState, error) {
	var state types.ClusterState
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClusters).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("cluster %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	if err := s.unseal(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) ListClusters() ([]*types.ClusterState, error) {
	var states []*types.ClusterState
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).ForEach(func(k, v []byte) error {
			var state types.ClusterState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			if err := s.unseal(&state); err != nil {
				return err
			}
			states = append(states, &state)
			return nil
		})
	})
	return states, err
}

func (s *BoltStore) DeleteCluster(name string) error {
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketClusters).Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketPhases).Delete([]byte(name))
	})
}

// Phase operations
func (s *BoltStore) SavePhases(cluster string, phases []PhaseRecord) error {
	data, err := json.Marshal(phases)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPhases).Put([]byte(cluster), data)
	})
}

func (s *BoltStore) GetPhases(cluster string) ([]PhaseRecord, error) {
	var phases []PhaseRecord
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPhases).Get([]byte(cluster))
		if data == nil {
			return fmt.Errorf("phases of %s: %w", cluster, ErrNotFound)
		}
		return json.Unmarshal(data, &phases)
	})
	return phases, err
}

func (s *BoltStore) seal(state *types.ClusterState) error {
	admin, err := s.sealer.Seal(state.AdminKeyringBlob)
	if err != nil {
		return err
	}
	mon, err := s.sealer.Seal(state.MonKeyringBlob)
	if err != nil {
		return err
	}
	state.AdminKeyringBlob, state.MonKeyringBlob = admin, mon
	state.KeyringsSealed = true
	return nil
}

// unseal decrypts the keyrings of a loaded state in place
func (s *BoltStore) unseal(state *types.ClusterState) error {
	if !state.KeyringsSealed {
		return nil
	}
	if s.sealer == nil {
		return fmt.Errorf("keyrings of %s are sealed and no state key is configured", state.Name)
	}
	admin, err := s.sealer.Open(state.AdminKeyringBlob)
	if err != nil {
		return fmt.Errorf("failed to unseal keyrings of %s: %w", state.Name, err)
	}
	mon, err := s.sealer.Open(state.MonKeyringBlob)
	if err != nil {
		return fmt.Errorf("failed to unseal keyrings of %s: %w", state.Name, err)
	}
	state.AdminKeyringBlob, state.MonKeyringBlob = admin, mon
	state.KeyringsSealed = false
	return nil
}
