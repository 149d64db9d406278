// Package storage defines the durable credential record and the repository
// abstraction that persists it.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no record has been saved yet.
	ErrNotFound = errors.New("credential record not found")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("credential record corrupt")
)

// Repository loads and saves the single credential record of an install.
//
// Save must be atomic: a concurrent or subsequent Load observes either the
// complete previous record or the complete new one, never a mix.
// Implementations need not serialize concurrent Saves themselves.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
}
