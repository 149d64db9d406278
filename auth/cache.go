package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
)

// snapshot is an immutable view of the credential record. The password hash
// is decoded once here and never re-parsed on the read path.
type snapshot struct {
	record    *storage.Record
	hash      passhash.Hash
	fetchedAt time.Time
}

func newSnapshot(rec *storage.Record, fetchedAt time.Time) (*snapshot, error) {
	h, err := passhash.Parse(rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	if rec.Sessions == nil {
		rec.Sessions = map[string]storage.Session{}
	}
	return &snapshot{record: rec, hash: h, fetchedAt: fetchedAt}, nil
}

// cache mirrors the durable record for at most ttl. It is written through by
// the writer after every successful save. gen counts installs so that a slow
// lazy reload never replaces a snapshot installed by a write that finished
// while the reload was in flight.
type cache struct {
	repo  storage.Repository
	clock clock.Clock
	ttl   time.Duration

	mu   sync.RWMutex
	snap *snapshot
	gen  uint64
}

func newCache(repo storage.Repository, clk clock.Clock, ttl time.Duration) *cache {
	return &cache{repo: repo, clock: clk, ttl: ttl}
}

func (c *cache) get(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap, gen := c.snap, c.gen
	c.mu.RUnlock()
	if snap != nil && c.clock.Since(snap.fetchedAt) < c.ttl {
		return snap, nil
	}

	rec, err := c.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	fresh, err := newSnapshot(rec, c.clock.Now())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return c.snap, nil
	}
	c.snap = fresh
	c.gen++
	return fresh, nil
}

func (c *cache) install(snap *snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.gen++
	c.mu.Unlock()
}
