package metrics_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/metrics"
	"github.com/jmcleod/platedash/storage/memory"
)

var _ auth.Recorder = (*metrics.Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	c := metrics.New(false)
	c.Login(metrics.LoginSuccess)
	c.Login(metrics.LoginFailure)
	c.Login(metrics.LoginFailure)
	c.SessionCreated()
	c.SessionsEvicted(2)
	c.SessionsExpired(3)
	c.SessionCount(4)
	c.PasswordMigration(true)
	c.PasswordMigration(false)

	assert.InDelta(t, 1, metricValue(t, c, "platedash_logins_total", metrics.LoginSuccess), 0)
	assert.InDelta(t, 2, metricValue(t, c, "platedash_logins_total", metrics.LoginFailure), 0)
	assert.InDelta(t, 0, metricValue(t, c, "platedash_logins_total", metrics.LoginRateLimited), 0)
	assert.InDelta(t, 1, metricValue(t, c, "platedash_password_migrations_total", "ok"), 0)
	assert.InDelta(t, 1, metricValue(t, c, "platedash_password_migrations_total", "failed"), 0)
	assert.InDelta(t, 1, metricValue(t, c, "platedash_sessions_created_total", ""), 0)
	assert.InDelta(t, 4, metricValue(t, c, "platedash_sessions_stored", ""), 0)
	assert.InDelta(t, 2, metricValue(t, c, "platedash_sessions_evicted_total", ""), 0)
	assert.InDelta(t, 3, metricValue(t, c, "platedash_sessions_expired_total", ""), 0)
}

func TestCollectorWiredIntoService(t *testing.T) {
	c := metrics.New(false)
	svc := auth.New(memory.NewRepository(),
		auth.WithRecorder(c),
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithLogger(slog.New(slog.DiscardHandler)),
	)
	defer svc.Close()

	ctx := context.Background()
	_, err := svc.Bootstrap(ctx, "abc123")
	require.NoError(t, err)
	for i := 0; i < auth.DefaultMaxSessions+2; i++ {
		_, err := svc.CreateSession(ctx, "UA")
		require.NoError(t, err)
	}

	assert.InDelta(t, float64(auth.DefaultMaxSessions+2), metricValue(t, c, "platedash_sessions_created_total", ""), 0)
	assert.InDelta(t, 2, metricValue(t, c, "platedash_sessions_evicted_total", ""), 0)
	assert.InDelta(t, float64(auth.DefaultMaxSessions), metricValue(t, c, "platedash_sessions_stored", ""), 0)
}

func TestHandler(t *testing.T) {
	c := metrics.New(true)
	c.SessionCreated()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "platedash_sessions_created_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

// metricValue returns the value of the series of name whose "result" label
// equals result, or of the only series when result is empty.
func metricValue(t *testing.T, c *metrics.Collector, name, result string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if result != "" && !hasResult(m.GetLabel(), result) {
				continue
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s{result=%q} not found", name, result)
	return 0
}

func hasResult(labels []*dto.LabelPair, result string) bool {
	for _, l := range labels {
		if l.GetName() == "result" && l.GetValue() == result {
			return true
		}
	}
	return false
}
