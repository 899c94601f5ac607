package store

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketRecipes = []byte("recipes")
	bucketMeta    = []byte("index_meta")
	keyIndexMeta  = []byte("meta")
)

// BoltStore owns the bolt database file backing the vector index.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (creating if needed) the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// DB returns the underlying bolt handle.
func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
