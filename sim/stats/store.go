package stats

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	bolt "go.etcd.io/bbolt"
)

const resultsBucket = "results"

// NewBatchID returns a fresh, time-ordered identifier for a group of runs.
func NewBatchID() string {
	return xid.New().String()
}

// StoreKey joins a batch id and a run id into a store key.
func StoreKey(batch, runID string) string {
	return batch + "/" + runID
}

// Store archives ResultSets in a bbolt database, keyed by "<batch>/<run>".
// Keys sort by batch creation time because batch ids are xids.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the archive at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening result store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(resultsBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing result store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores rs under batch and returns its key.
func (s *Store) Put(batch string, rs *ResultSet) (string, error) {
	if strings.Contains(batch, "/") {
		return "", fmt.Errorf("batch id %q must not contain '/'", batch)
	}
	data, err := rs.MarshalBinary()
	if err != nil {
		return "", err
	}
	key := StoreKey(batch, rs.RunID)
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(resultsBucket)).Put([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}
	return key, nil
}

// Get loads the ResultSet stored under key.
func (s *Store) Get(key string) (*ResultSet, error) {
	var rs *ResultSet
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(resultsBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("result %q: %w", key, ErrNotFound)
		}
		rs = &ResultSet{}
		return rs.UnmarshalBinary(data)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Keys returns every stored key in ascending order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(resultsBucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Batch loads every ResultSet of one batch in key order.
func (s *Store) Batch(batch string) ([]*ResultSet, error) {
	prefix := []byte(batch + "/")
	var out []*ResultSet
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(resultsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rs := &ResultSet{}
			if err := rs.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out = append(out, rs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
