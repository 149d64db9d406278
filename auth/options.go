package auth

import (
	"log/slog"
	"time"

	"github.com/filecoin-project/go-clock"
)

const (
	// DefaultCacheTTL bounds how stale a read of the credential record may be.
	DefaultCacheTTL = 5 * time.Second
	// DefaultSessionTTL is the fixed lifetime of a session.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultMaxSessions is the number of concurrent sessions kept.
	DefaultMaxSessions = 5
	// DefaultTouchInterval is how stale LastUsed may get before a successful
	// verification rewrites it.
	DefaultTouchInterval = 5 * time.Minute
)

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. Tests use clock.NewMock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithCacheTTL overrides DefaultCacheTTL. Zero disables caching of reads.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = d
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = d
	}
}

// WithMaxSessions overrides DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		s.maxSessions = n
	}
}

// WithTouchInterval overrides DefaultTouchInterval.
func WithTouchInterval(d time.Duration) Option {
	return func(s *Service) {
		s.touchInterval = d
	}
}

// WithBcryptCost sets the cost of newly produced password hashes.
// Default: passhash.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}
