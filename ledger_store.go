package civic

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const recordsBucket = "records"

// LedgerStore persists ledger records in BoltDB, keyed by arrival position.
type LedgerStore struct {
	db *bbolt.DB
}

// OpenLedgerStore opens (or creates) the store at path.
func OpenLedgerStore(path string) (*LedgerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records bucket: %w", err)
	}

	return &LedgerStore{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *LedgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores a record at the given arrival position.
func (s *LedgerStore) Put(position int, r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordsBucket))
		if bucket == nil {
			return fmt.Errorf("records bucket is missing")
		}
		return bucket.Put(positionKey(position), payload)
	})
}

// Load returns every stored record in arrival order.
func (s *LedgerStore) Load() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordsBucket))
		if bucket == nil {
			return fmt.Errorf("records bucket is missing")
		}
		return bucket.ForEach(func(_, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			records = append(records, r)
			return nil
		})
	})
	return records, err
}

// positionKey is big-endian so bbolt's byte ordering is arrival order.
func positionKey(position int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(position))
	return key
}
