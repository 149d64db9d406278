package auth

import (
	"context"
	"errors"
)

// Login checks password and, on success, issues a session for userAgent.
// A wrong password yields ErrInvalidPassword; storage failures are returned
// as they are so callers can log them, but should be shown to users as the
// same generic failure.
//
// If the stored hash is on the legacy scheme it is migrated after the session
// has been granted. Migration is best effort: a failure is logged and the
// login still succeeds; the next login tries again.
func (s *Service) Login(ctx context.Context, password, userAgent string) (string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if !snap.hash.Verify(password) {
		return "", ErrInvalidPassword
	}
	id, err := s.CreateSession(ctx, userAgent)
	if err != nil {
		return "", err
	}
	if snap.hash.IsLegacy() {
		if _, err := s.MigratePassword(ctx, password); err != nil {
			if errors.Is(err, ErrInvalidPassword) {
				// Password changed between verify and migrate.
				s.logger.Info("password hash migration skipped: password changed concurrently")
			} else {
				s.logger.Warn("password hash migration failed; hash remains on legacy scheme", "error", err)
			}
		} else {
			s.logger.Info("password hash migrated to bcrypt")
		}
	}
	return id, nil
}
