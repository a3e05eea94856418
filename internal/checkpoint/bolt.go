package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// stateKey is the single key the document lives under.
var stateKey = []byte("state")

// BoltBackend keeps the document in an embedded bbolt database.
type BoltBackend struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltBackend opens (creating if needed) the database at path.
func NewBoltBackend(path, bucket string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	name := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltBackend{db: db, bucket: name}, nil
}

// Name implements Backend.
func (b *BoltBackend) Name() string { return "bolt" }

// Read implements Backend.
func (b *BoltBackend) Read(context.Context) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.bucket).Get(stateKey)
		if raw == nil {
			return ErrNotFound
		}
		// Values are only valid inside the transaction.
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

// Write implements Backend.
func (b *BoltBackend) Write(_ context.Context, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(stateKey, data)
	})
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
