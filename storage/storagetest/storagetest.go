// Package storagetest holds the conformance suite shared by every
// storage.Repository implementation.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/platedash/storage"
)

// Run exercises repo, which must start empty.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadEmpty", func(t *testing.T) {
		_, err := repo.Load(ctx)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &storage.Record{
		PasswordHash: "0000000000000000000000000000000000000000000000000000000000000000",
		APIKey:       "abcdef",
		Sessions: map[string]storage.Session{
			"s1": {
				UserAgent: "UA-1",
				CreatedAt: now,
				LastUsed:  now,
				ExpiresAt: now.Add(24 * time.Hour),
				Meta:      map[string]string{"frigate": "abc"},
			},
		},
	}

	t.Run("SaveAndLoad", func(t *testing.T) {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.PasswordHash != rec.PasswordHash || got.APIKey != rec.APIKey {
			t.Fatalf("Load returned wrong record: %+v", got)
		}
		s, ok := got.Sessions["s1"]
		if !ok {
			t.Fatal("expected session s1")
		}
		if s.UserAgent != "UA-1" || !s.CreatedAt.Equal(now) || !s.ExpiresAt.Equal(now.Add(24*time.Hour)) {
			t.Errorf("session mismatch: %+v", s)
		}
		if s.Meta["frigate"] != "abc" {
			t.Errorf("session meta mismatch: %+v", s.Meta)
		}
	})

	t.Run("Isolation", func(t *testing.T) {
		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		got.APIKey = "mutated"
		delete(got.Sessions, "s1")

		again, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if again.APIKey != "abcdef" || len(again.Sessions) != 1 {
			t.Error("repository should not alias loaded records")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		next := rec.Clone()
		next.APIKey = "fedcba"
		next.Sessions = map[string]storage.Session{}
		if err := repo.Save(ctx, next); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.APIKey != "fedcba" || len(got.Sessions) != 0 {
			t.Errorf("expected overwritten record, got %+v", got)
		}
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := rec.Clone()
				r.APIKey = string(rune('a' + i))
				if err := repo.Save(ctx, r); err != nil {
					t.Errorf("Save %d failed: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Load after concurrent saves failed: %v", err)
		}
		if len(got.APIKey) != 1 || got.PasswordHash != rec.PasswordHash {
			t.Errorf("expected one complete record, got %+v", got)
		}
	})
}
