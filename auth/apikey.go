package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/jmcleod/platedash/internal/util"
	"github.com/jmcleod/platedash/storage"
)

const apiKeyBytes = 32

// VerifyAPIKey reports whether candidate equals the stored API key.
func (s *Service) VerifyAPIKey(ctx context.Context, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	key := snap.record.APIKey
	if key == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1, nil
}

// APIKey returns the current API key.
func (s *Service) APIKey(ctx context.Context) (string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.record.APIKey, nil
}

// RotateAPIKey replaces the API key with a fresh random one and returns it.
// Sessions are not affected.
func (s *Service) RotateAPIKey(ctx context.Context) (string, error) {
	key, err := util.RandomHex(apiKeyBytes)
	if err != nil {
		return "", err
	}
	_, err = s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		rec.APIKey = key
		return rec, nil
	})
	if err != nil {
		return "", fmt.Errorf("rotating api key: %w", err)
	}
	s.logger.Info("api key rotated")
	return key, nil
}
