package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("triggers")

// RunRecord is what survives a restart for one trigger.
type RunRecord struct {
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int64     `json:"runs"`
}

// StateStore persists trigger run records so a restarted service waits out
// the rest of each interval instead of firing everything at boot.
type StateStore struct {
	db *bolt.DB
}

func OpenStateStore(path string) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating triggers bucket: %w", err)
	}

	return &StateStore{db: db}, nil
}

// Load returns the record for name, or ok=false when the trigger never ran.
func (s *StateStore) Load(name string) (rec RunRecord, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(name))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshaling run record %s: %w", name, err)
		}
		ok = true
		return nil
	})
	return rec, ok, err
}

func (s *StateStore) Save(name string, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run record %s: %w", name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketName).Put([]byte(name), data); err != nil {
			return fmt.Errorf("writing run record %s: %w", name, err)
		}
		return nil
	})
}

func (s *StateStore) Close() error {
	return s.db.Close()
}
