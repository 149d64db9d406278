// Package file provides a storage.Repository that keeps the credential
// record as a single JSON document on disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"

	"github.com/jmcleod/platedash/storage"
)

// Store implements storage.Repository backed by one JSON file. Saves write a
// temporary file in the same directory, fsync it and rename it over the
// canonical path, so a crash mid-save leaves the previous document intact.
type Store struct {
	path string
	mode fs.FileMode
}

var _ storage.Repository = (*Store)(nil)

// New returns a Store for the document at path. The parent directory is
// created on first save.
func New(path string) *Store {
	return &Store{path: path, mode: 0o600}
}

// Path returns the canonical document path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(_ context.Context) (*storage.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential record: %w", err)
	}
	return storage.Unmarshal(data)
}

func (s *Store) Save(_ context.Context, record *storage.Record) error {
	data, err := storage.Marshal(record)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}
	f, err := atomicfile.New(s.path, s.mode)
	if err != nil {
		return fmt.Errorf("creating temporary credential file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("writing credential record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Abort()
		return fmt.Errorf("syncing credential record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("replacing credential record: %w", err)
	}
	return nil
}
