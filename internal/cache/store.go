// Package cache persists the most recent snapshot per key so "last known
// state" queries survive restarts without creating a live subscription.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/metrics"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketSnapshots = []byte("snapshots")

// Store is a bbolt-backed write-through cache of the latest snapshot per key.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewStore opens or creates the snapshot cache database.
func NewStore(path string, noSync bool, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: noSync})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Put records snap as the latest snapshot for key.
func (s *Store) Put(_ context.Context, key types.Key, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("encoding snapshot for %s: %w", key, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(key), data)
	})
	if err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("writing snapshot for %s: %w", key, err)
	}

	metrics.CacheWrites.WithLabelValues("ok").Inc()
	return nil
}

// Get returns the latest recorded snapshot for key, if any.
func (s *Store) Get(_ context.Context, key types.Key) (types.Snapshot, bool, error) {
	var data []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketSnapshots).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("reading snapshot for %s: %w", key, err)
	}
	if data == nil {
		return types.Snapshot{}, false, nil
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("decoding snapshot for %s: %w", key, err)
	}
	return snap, true, nil
}

// Keys lists every key with a cached snapshot.
func (s *Store) Keys(_ context.Context) ([]types.Key, error) {
	var keys []types.Key
	if err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			keys = append(keys, types.Key(k))
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("listing cached keys: %w", err)
	}
	return keys, nil
}

// Ping probes the database, for readiness checks.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSnapshots) == nil {
			return fmt.Errorf("snapshots bucket missing")
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
