// Package statecache is a local, non-authoritative bbolt snapshot of
// supervisory state: head, last processed block, and derived status.
// Postgres's indexed_ranges table remains the sole coverage authority;
// this cache only gives the status handler and the follower's cold
// start something to answer with before the first poll completes.
package statecache

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/0xkanth/rangeindexer/internal/state"
)

const bucketName = "supervisor_state"

// Snapshot is the persisted shape of one cached state row.
type Snapshot struct {
	ServiceName string       `json:"service_name"`
	Head        uint64       `json:"head"`
	LastBlock   uint64       `json:"last_block"`
	Status      state.Status `json:"status"`
	SavedAt     time.Time    `json:"saved_at"`
}

// Cache is a bbolt-backed store of Snapshot rows keyed by service name.
type Cache struct {
	db *bbolt.DB
}

// Open opens (or creates) the bbolt file at path and ensures the
// supervisor_state bucket exists.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create state cache bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Save writes the current snapshot for serviceName, overwriting any
// previous one.
func (c *Cache) Save(serviceName string, snap Snapshot) error {
	snap.ServiceName = serviceName
	snap.SavedAt = time.Now()

	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal state snapshot: %w", err)
		}
		return b.Put([]byte(serviceName), data)
	})
}

// Load returns the last saved snapshot for serviceName, or false if none
// has been saved yet.
func (c *Cache) Load(serviceName string) (Snapshot, bool, error) {
	var snap Snapshot
	found := false

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data := b.Get([]byte(serviceName))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, found, nil
}

// Close closes the underlying bbolt file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// ServiceSaver adapts Cache to follower.SnapshotSaver for one fixed
// service name, logging rather than failing the caller on a write error
// since this cache is purely a cold-start convenience.
type ServiceSaver struct {
	cache       *Cache
	serviceName string
	onError     func(error)
}

// NewServiceSaver builds a ServiceSaver. onError may be nil.
func NewServiceSaver(cache *Cache, serviceName string, onError func(error)) *ServiceSaver {
	return &ServiceSaver{cache: cache, serviceName: serviceName, onError: onError}
}

// Save persists the snapshot, reporting (not returning) any error since
// this cache is never allowed to affect the caller's control flow.
func (s *ServiceSaver) Save(head, lastBlock uint64, status state.Status) {
	err := s.cache.Save(s.serviceName, Snapshot{Head: head, LastBlock: lastBlock, Status: status})
	if err != nil && s.onError != nil {
		s.onError(err)
	}
}
