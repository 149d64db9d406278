// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/platedash/storage"
)

var (
	credentialsBucket = []byte("credentials")
	recordKey         = []byte("record")
)

// Store implements storage.Repository backed by a BBolt database. The record
// is one value replaced inside a single update transaction, which bbolt
// commits atomically.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
// A nil options value waits at most one second for the file lock so a second
// process fails fast instead of hanging.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(_ context.Context) (*storage.Record, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if b == nil {
			return storage.ErrNotFound
		}
		v := b.Get(recordKey)
		if v == nil {
			return storage.ErrNotFound
		}
		// v is only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.Unmarshal(data)
}

func (s *Store) Save(_ context.Context, record *storage.Record) error {
	data, err := storage.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(credentialsBucket)
		if err != nil {
			return err
		}
		return b.Put(recordKey, data)
	})
}
