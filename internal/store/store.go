package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/kinocast/internal/domain"
)

// Bucket names
var (
	bucketDevice    = []byte("device")
	bucketReceivers = []byte("receivers")
)

const keyDeviceID = "id"

// knownReceiver is a receiver with the time it was last discovered.
type knownReceiver struct {
	Device   domain.ReceiverDevice `json:"device"`
	LastSeen time.Time             `json:"last_seen"`
}

// StateStore persists the client's device identity and the cast receivers
// it has seen, using BoltDB behind a read-through memory cache.
type StateStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

// NewStateStore opens kinocast.db under dir. An empty dir keeps state in
// memory only.
func NewStateStore(dir string) (*StateStore, error) {
	if dir == "" {
		return &StateStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "kinocast.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDevice, bucketReceivers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &StateStore{db: db, cache: make(map[string][]byte)}, nil
}

func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Device identity ===

// DeviceID returns the persisted device id, generating it on first use.
// The id stays stable for the lifetime of the store so the server sees one
// device across runs.
func (s *StateStore) DeviceID() (string, error) {
	var id string
	if s.get(bucketDevice, keyDeviceID, &id) && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.set(bucketDevice, keyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// === Receivers ===

// SaveReceivers records discovered receivers, refreshing their last-seen time.
func (s *StateStore) SaveReceivers(devices []domain.ReceiverDevice, seen time.Time) error {
	for _, d := range devices {
		if err := s.set(bucketReceivers, d.ID, knownReceiver{Device: d, LastSeen: seen}); err != nil {
			return fmt.Errorf("failed to save receiver %s: %w", d.ID, err)
		}
	}
	return nil
}

// Receivers returns receivers seen at or after since, most recent first.
func (s *StateStore) Receivers(since time.Time) ([]domain.ReceiverDevice, error) {
	known, err := s.allReceivers()
	if err != nil {
		return nil, err
	}

	sort.Slice(known, func(i, j int) bool {
		return known[i].LastSeen.After(known[j].LastSeen)
	})

	var out []domain.ReceiverDevice
	for _, k := range known {
		if !k.LastSeen.Before(since) {
			out = append(out, k.Device)
		}
	}
	return out, nil
}

// ForgetReceivers drops every remembered receiver.
func (s *StateStore) ForgetReceivers() error {
	s.mu.Lock()
	prefix := string(bucketReceivers) + ":"
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceivers)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *StateStore) allReceivers() ([]knownReceiver, error) {
	var out []knownReceiver

	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		prefix := string(bucketReceivers) + ":"
		for k, data := range s.cache {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			var r knownReceiver
			if err := json.Unmarshal(data, &r); err == nil {
				out = append(out, r)
			}
		}
		return out, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceivers).ForEach(func(_, v []byte) error {
			var r knownReceiver
			if err := json.Unmarshal(v, &r); err != nil {
				return nil // skip entries written by an older layout
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read receivers: %w", err)
	}
	return out, nil
}

// === Generic helpers ===

func (s *StateStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *StateStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}
