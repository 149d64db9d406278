// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/platedash/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
//
// Records are cloned on the way in and out so callers can never alias the
// stored copy. A save hook can be installed to inject failures.
type Repository struct {
	mu       sync.RWMutex
	record   *storage.Record
	loads    int
	saves    int
	saveHook func(*storage.Record) error
	loadHook func() error
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Load(_ context.Context) (*storage.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.loadHook != nil {
		if err := r.loadHook(); err != nil {
			return nil, err
		}
	}
	if r.record == nil {
		return nil, storage.ErrNotFound
	}
	return r.record.Clone(), nil
}

func (r *Repository) Save(_ context.Context, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveHook != nil {
		if err := r.saveHook(record); err != nil {
			return err
		}
	}
	r.saves++
	r.record = record.Clone()
	return nil
}

// SetSaveHook installs fn to run before every Save. A non-nil error aborts
// the save and is returned to the caller; nil clears the hook.
func (r *Repository) SetSaveHook(fn func(*storage.Record) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveHook = fn
}

// SetLoadHook installs fn to run before every Load.
func (r *Repository) SetLoadHook(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadHook = fn
}

// Loads returns how many times Load has been called.
func (r *Repository) Loads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads
}

// Saves returns how many Saves have succeeded.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// Peek returns a copy of the stored record without counting as a Load.
func (r *Repository) Peek() *storage.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.record.Clone()
}
