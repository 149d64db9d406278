package auth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
	"github.com/jmcleod/platedash/storage/memory"
)

const testPassword = "abc123"

var testStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	svc   *Service
	repo  *memory.Repository
	clock *clock.Mock
	rec   *countingRecorder
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  memory.NewRepository(),
		clock: clock.NewMock(),
		rec:   &countingRecorder{},
	}
	env.clock.Set(testStart)
	base := []Option{
		WithClock(env.clock),
		WithBcryptCost(bcrypt.MinCost),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRecorder(env.rec),
	}
	env.svc = New(env.repo, append(base, opts...)...)
	t.Cleanup(env.svc.Close)
	return env
}

// newBootstrapped returns an env whose record was created from testPassword.
func newBootstrapped(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := newTestEnv(t, opts...)
	_, err := env.svc.Bootstrap(context.Background(), testPassword)
	require.NoError(t, err)
	return env
}

// newLegacy returns an env seeded with a legacy SHA-256 hash of testPassword,
// as written by installs that predate bcrypt.
func newLegacy(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := newTestEnv(t, opts...)
	require.NoError(t, env.repo.Save(context.Background(), &storage.Record{
		PasswordHash: passhash.NewLegacy(testPassword).String(),
		APIKey:       "legacy-key",
		Sessions:     map[string]storage.Session{},
	}))
	return env
}

type countingRecorder struct {
	mu         sync.Mutex
	created    int
	evicted    int
	expired    int
	count      int
	migrations map[bool]int
}

func (r *countingRecorder) SessionCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) SessionsEvicted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted += n
}

func (r *countingRecorder) SessionsExpired(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired += n
}

func (r *countingRecorder) SessionCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = n
}

func (r *countingRecorder) PasswordMigration(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.migrations == nil {
		r.migrations = map[bool]int{}
	}
	r.migrations[ok]++
}

type recorderCounts struct {
	created, evicted, expired, count int
	migrated, migrationFailed        int
}

func (r *countingRecorder) counts() recorderCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorderCounts{
		created:         r.created,
		evicted:         r.evicted,
		expired:         r.expired,
		count:           r.count,
		migrated:        r.migrations[true],
		migrationFailed: r.migrations[false],
	}
}
