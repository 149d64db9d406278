package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/platedash/internal/util"
	"github.com/jmcleod/platedash/storage"
)

const (
	// MaxUserAgentLength caps the stored user agent hint, in characters.
	MaxUserAgentLength = 255

	sessionIDBytes = 32
)

// SessionInfo describes an active session for display.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newSessionInfo(id string, s storage.Session) *SessionInfo {
	return &SessionInfo{
		ID:        id,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed,
		ExpiresAt: s.ExpiresAt,
	}
}

// CreateSession issues a new session and returns its ID. Expired sessions
// are pruned first; if the table is still at capacity the session created
// earliest is evicted to make room.
func (s *Service) CreateSession(ctx context.Context, userAgent string) (string, error) {
	ua := util.Truncate(userAgent, MaxUserAgentLength)
	var (
		id      string
		expired int
		evicted int
	)
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		now := s.clock.Now()
		expired = pruneExpired(rec, now)
		// Normally removes exactly one; more only if the cap was lowered.
		for len(rec.Sessions) >= s.maxSessions {
			delete(rec.Sessions, oldestSession(rec.Sessions))
			evicted++
		}
		newID, err := newSessionID(rec)
		if err != nil {
			return nil, err
		}
		rec.Sessions[newID] = storage.Session{
			UserAgent: ua,
			CreatedAt: now,
			LastUsed:  now,
			ExpiresAt: now.Add(s.sessionTTL),
		}
		id = newID
		return rec, nil
	})
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	s.recorder.SessionCreated()
	if expired > 0 {
		s.recorder.SessionsExpired(expired)
	}
	if evicted > 0 {
		s.recorder.SessionsEvicted(evicted)
		s.logger.Info("session capacity reached; evicted oldest session", "evicted", evicted)
	}
	return id, nil
}

// VerifySession reports whether id names a live session. An expired session
// is removed as a side effect. A successful check refreshes LastUsed once it
// is older than the touch interval. Only storage failures return an error.
func (s *Service) VerifySession(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return false, err
	}
	sess, ok := snap.record.Sessions[id]
	if !ok {
		return false, nil
	}
	now := s.clock.Now()
	if !sess.Expired(now) && now.Sub(sess.LastUsed) <= s.touchInterval {
		return true, nil
	}
	return s.settleSession(ctx, id)
}

// settleSession re-checks id against the durable record, removing it when
// expired and refreshing LastUsed when stale.
func (s *Service) settleSession(ctx context.Context, id string) (bool, error) {
	valid, expired := false, false
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		sess, ok := rec.Sessions[id]
		if !ok {
			return nil, errNoWrite
		}
		now := s.clock.Now()
		if sess.Expired(now) {
			delete(rec.Sessions, id)
			expired = true
			return rec, nil
		}
		valid = true
		if now.Sub(sess.LastUsed) <= s.touchInterval {
			return nil, errNoWrite
		}
		sess.LastUsed = now
		rec.Sessions[id] = sess
		return rec, nil
	})
	if err != nil {
		return false, fmt.Errorf("verifying session: %w", err)
	}
	if expired {
		s.recorder.SessionsExpired(1)
	}
	return valid, nil
}

// SessionInfo returns metadata for a live session, or nil.
func (s *Service) SessionInfo(ctx context.Context, id string) (*SessionInfo, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := snap.record.Sessions[id]
	if !ok || sess.Expired(s.clock.Now()) {
		return nil, nil
	}
	return newSessionInfo(id, sess), nil
}

// InvalidateSession removes id and reports whether it existed.
func (s *Service) InvalidateSession(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	removed := false
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		if _, ok := rec.Sessions[id]; !ok {
			return nil, errNoWrite
		}
		delete(rec.Sessions, id)
		removed = true
		return rec, nil
	})
	if err != nil {
		return false, fmt.Errorf("invalidating session: %w", err)
	}
	return removed, nil
}

// ListActiveSessions returns the unexpired sessions, oldest first. Expired
// entries are hidden but not removed.
func (s *Service) ListActiveSessions(ctx context.Context) ([]SessionInfo, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]SessionInfo, 0, len(snap.record.Sessions))
	for id, sess := range snap.record.Sessions {
		if sess.Expired(now) {
			continue
		}
		out = append(out, *newSessionInfo(id, sess))
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ClearAllSessions empties the session table in a single write.
func (s *Service) ClearAllSessions(ctx context.Context) error {
	cleared := 0
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		if len(rec.Sessions) == 0 {
			return nil, errNoWrite
		}
		cleared = len(rec.Sessions)
		rec.Sessions = map[string]storage.Session{}
		return rec, nil
	})
	if err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	if cleared > 0 {
		s.logger.Info("all sessions cleared", "sessions", cleared)
	}
	return nil
}

// PruneExpired removes every expired session in one write and returns how
// many were removed. It is the hook for an optional periodic sweep.
func (s *Service) PruneExpired(ctx context.Context) (int, error) {
	removed := 0
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		removed = pruneExpired(rec, s.clock.Now())
		if removed == 0 {
			return nil, errNoWrite
		}
		return rec, nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	if removed > 0 {
		s.recorder.SessionsExpired(removed)
	}
	return removed, nil
}

// SetSessionMeta stores value under key in the session's own metadata, e.g.
// the ID of a session held with an external service on its behalf. An empty
// value deletes the key. It reports false if the session does not exist.
func (s *Service) SetSessionMeta(ctx context.Context, id, key, value string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: metadata key is required", ErrValidation)
	}
	found := false
	_, err := s.writer.submit(ctx, false, func(rec *storage.Record) (*storage.Record, error) {
		sess, ok := rec.Sessions[id]
		if !ok || sess.Expired(s.clock.Now()) {
			return nil, errNoWrite
		}
		found = true
		if value == "" {
			if _, ok := sess.Meta[key]; !ok {
				return nil, errNoWrite
			}
			delete(sess.Meta, key)
		} else {
			if sess.Meta == nil {
				sess.Meta = map[string]string{}
			}
			sess.Meta[key] = value
		}
		rec.Sessions[id] = sess
		return rec, nil
	})
	if err != nil {
		return false, fmt.Errorf("setting session metadata: %w", err)
	}
	return found, nil
}

// SessionMeta returns the metadata value stored under key for a live session.
func (s *Service) SessionMeta(ctx context.Context, id, key string) (string, bool, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	sess, ok := snap.record.Sessions[id]
	if !ok || sess.Expired(s.clock.Now()) {
		return "", false, nil
	}
	v, ok := sess.Meta[key]
	return v, ok, nil
}

func pruneExpired(rec *storage.Record, now time.Time) int {
	n := 0
	for id, sess := range rec.Sessions {
		if sess.Expired(now) {
			delete(rec.Sessions, id)
			n++
		}
	}
	return n
}

// oldestSession returns the ID with the smallest CreatedAt. Ties break on ID
// so eviction is deterministic.
func oldestSession(sessions map[string]storage.Session) string {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range sessions {
		if oldestID == "" || sess.CreatedAt.Before(oldest) ||
			(sess.CreatedAt.Equal(oldest) && id < oldestID) {
			oldestID, oldest = id, sess.CreatedAt
		}
	}
	return oldestID
}

func newSessionID(rec *storage.Record) (string, error) {
	for {
		id, err := util.RandomHex(sessionIDBytes)
		if err != nil {
			return "", fmt.Errorf("generating session id: %w", err)
		}
		if _, taken := rec.Sessions[id]; !taken {
			return id, nil
		}
	}
}
