package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/jmcleod/platedash/internal/util"
	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
)

// Service is the credential and session manager for one install. Create it
// with New and release it with Close. All methods are safe for concurrent
// use.
type Service struct {
	repo     storage.Repository
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder

	cacheTTL      time.Duration
	sessionTTL    time.Duration
	touchInterval time.Duration
	maxSessions   int
	bcryptCost    int

	cache  *cache
	writer *writer
}

// New returns a Service persisting to repo. Nothing is read until the first
// call; use Bootstrap at startup to create the record on first run.
func New(repo storage.Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		clock:         clock.New(),
		logger:        slog.Default(),
		recorder:      nopRecorder{},
		cacheTTL:      DefaultCacheTTL,
		sessionTTL:    DefaultSessionTTL,
		touchInterval: DefaultTouchInterval,
		maxSessions:   DefaultMaxSessions,
		bcryptCost:    passhash.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxSessions < 1 {
		s.maxSessions = DefaultMaxSessions
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	s.logger = s.logger.With("component", "auth")
	s.cache = newCache(repo, s.clock, s.cacheTTL)
	s.writer = newWriter(s)
	return s
}

// Close stops the writer. Writes issued afterwards fail with ErrClosed;
// a write already in progress completes first.
func (s *Service) Close() {
	s.writer.close()
}

// Bootstrap makes sure the credential record exists. On first run it creates
// one from initialPassword with an empty session table and a fresh API key;
// if initialPassword is empty at that point it fails with ErrConfig. When a
// record already exists initialPassword is ignored.
func (s *Service) Bootstrap(ctx context.Context, initialPassword string) (*storage.Record, error) {
	created := false
	rec, err := s.writer.submit(ctx, true, func(cur *storage.Record) (*storage.Record, error) {
		if cur != nil {
			return nil, errNoWrite
		}
		if initialPassword == "" {
			return nil, fmt.Errorf("%w: no credential record exists and no initial password was supplied", ErrConfig)
		}
		h, err := passhash.NewModern(initialPassword, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("%w: initial password: %v", ErrConfig, err)
		}
		key, err := util.RandomHex(apiKeyBytes)
		if err != nil {
			return nil, err
		}
		created = true
		return &storage.Record{
			Ver:          storage.RecordVersion,
			PasswordHash: h.String(),
			APIKey:       key,
			Sessions:     map[string]storage.Session{},
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrapping credential record: %w", err)
	}
	if created {
		s.logger.Info("credential record created")
	}
	return rec.Clone(), nil
}

// Store returns a copy of the credential record as currently cached.
func (s *Service) Store(ctx context.Context) (*storage.Record, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.record.Clone(), nil
}

// PutStore replaces the whole credential record. A subsequent Store by the
// same caller returns rec regardless of the cache TTL.
func (s *Service) PutStore(ctx context.Context, rec *storage.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrValidation)
	}
	if _, err := passhash.Parse(rec.PasswordHash); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	next := rec.Clone()
	next.Ver = storage.RecordVersion
	_, err := s.writer.submit(ctx, true, func(*storage.Record) (*storage.Record, error) {
		return next, nil
	})
	return err
}

// Update applies fn to the latest durable record and saves the result as one
// serialized write. fn must not retain rec.
func (s *Service) Update(ctx context.Context, fn func(rec *storage.Record) error) (*storage.Record, error) {
	rec, err := s.writer.submit(ctx, false, func(cur *storage.Record) (*storage.Record, error) {
		if err := fn(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	snap, err := s.cache.get(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("credential record not bootstrapped: %w", err)
		}
		return nil, fmt.Errorf("loading credential record: %w", err)
	}
	return snap, nil
}
