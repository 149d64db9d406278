package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
)

// VerifyPassword reports whether password matches the stored hash, under
// whichever scheme produced it. It never writes; see MigratePassword.
func (s *Service) VerifyPassword(ctx context.Context, password string) (bool, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.hash.Verify(password), nil
}

// NeedsMigration reports whether the stored hash uses the legacy scheme.
func (s *Service) NeedsMigration(ctx context.Context) (bool, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.hash.IsLegacy(), nil
}

// MigratePassword rewrites a legacy hash as bcrypt for the same password and
// returns the stored hash afterwards. The caller must already have verified
// password; it is checked again against the durable record so a concurrent
// password change is never overwritten. On a modern hash it does nothing.
func (s *Service) MigratePassword(ctx context.Context, password string) (string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if !snap.hash.IsLegacy() {
		return snap.hash.String(), nil
	}
	if !snap.hash.Verify(password) {
		return "", ErrInvalidPassword
	}
	modern, err := s.hashPassword(password)
	if err != nil {
		return "", err
	}

	var stored string
	_, err = s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		cur, err := passhash.Parse(rec.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
		}
		if !cur.IsLegacy() {
			stored = rec.PasswordHash
			return nil, errNoWrite
		}
		if !cur.Verify(password) {
			return nil, ErrInvalidPassword
		}
		rec.PasswordHash = modern.String()
		stored = rec.PasswordHash
		return rec, nil
	})
	s.recorder.PasswordMigration(err == nil)
	if err != nil {
		return "", fmt.Errorf("migrating password hash: %w", err)
	}
	return stored, nil
}

// ChangePassword replaces the password and, in the same write, ends every
// session so all devices must sign in again.
func (s *Service) ChangePassword(ctx context.Context, newPassword string) error {
	h, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	cleared := 0
	_, err = s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		rec.PasswordHash = h.String()
		cleared = len(rec.Sessions)
		rec.Sessions = map[string]storage.Session{}
		return rec, nil
	})
	if err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	s.logger.Info("password changed; all sessions cleared", "sessions", cleared)
	return nil
}

func (s *Service) hashPassword(password string) (passhash.Hash, error) {
	h, err := passhash.NewModern(password, s.bcryptCost)
	switch {
	case errors.Is(err, passhash.ErrEmptyPassword):
		return passhash.Hash{}, fmt.Errorf("%w: password is required", ErrValidation)
	case errors.Is(err, passhash.ErrTooLong):
		return passhash.Hash{}, fmt.Errorf("%w: %v", ErrValidation, err)
	case err != nil:
		return passhash.Hash{}, err
	}
	return h, nil
}
