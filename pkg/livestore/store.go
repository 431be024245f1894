// Package livestore provides a small persistent key-value store for client
// state that must survive a restart: turn-liveness records and per-room UI
// preference caches. One bolt file holds everything; each logical dataset
// lives in its own bucket.
package livestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"
)

// Store wraps a bolt database. Values are JSON envelopes carrying their own
// write timestamp so readers can enforce TTLs without a background sweeper.
type Store struct {
	db *bolt.DB

	// Now stamps writes; overridable in tests.
	Now func() time.Time
}

type envelope struct {
	SavedAt time.Time       `json:"saved_at"`
	Value   json.RawMessage `json:"value"`
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	return &Store{db: db, Now: time.Now}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes value under namespace/key, stamping it with now.
func (s *Store) Put(namespace, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", namespace, key, err)
	}
	enc, err := sonic.Marshal(envelope{SavedAt: s.Now().UTC(), Value: raw})
	if err != nil {
		return fmt.Errorf("encoding envelope %s/%s: %w", namespace, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), enc)
	})
}

// Get reads namespace/key into out and reports the timestamp it was written
// with. ok is false when the key is absent or the stored bytes are not
// decodable; a malformed entry never fails the read.
func (s *Store) Get(namespace, key string, out any) (savedAt time.Time, ok bool, err error) {
	var enc []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			enc = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || enc == nil {
		return time.Time{}, false, err
	}

	var env envelope
	if err := sonic.Unmarshal(enc, &env); err != nil {
		// Skip malformed entries instead of failing the caller.
		return time.Time{}, false, nil
	}
	if out != nil && len(env.Value) > 0 {
		if err := sonic.Unmarshal(env.Value, out); err != nil {
			return time.Time{}, false, nil
		}
	}
	return env.SavedAt, true, nil
}

// Delete removes namespace/key. Deleting an absent key is a no-op.
func (s *Store) Delete(namespace, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
