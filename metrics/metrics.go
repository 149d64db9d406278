// Package metrics exposes credential and session activity as Prometheus
// metrics. Each Collector owns its registry so several can coexist in one
// process (tests, embedded use).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "platedash"

// Login results.
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
	LoginError       = "error"
)

// Collector implements auth.Recorder on top of Prometheus collectors.
type Collector struct {
	registry *prometheus.Registry

	logins          *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
	sessionsExpired prometheus.Counter
	sessionsActive  prometheus.Gauge
	migrations      *prometheus.CounterVec
}

// New returns a Collector registered on a fresh registry. If withRuntime is
// set the Go runtime and process collectors are registered too.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions issued.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted because the session table was full.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Expired sessions removed from the session table.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_stored",
			Help:      "Sessions in the table after the last write, including not yet pruned expired ones.",
		}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_migrations_total",
			Help:      "Legacy password hash migrations by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.logins,
		c.sessionsCreated,
		c.sessionsEvicted,
		c.sessionsExpired,
		c.sessionsActive,
		c.migrations,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	// Pre-create label values so dashboards see zeroes instead of gaps.
	for _, r := range []string{LoginSuccess, LoginFailure, LoginRateLimited, LoginError} {
		c.logins.WithLabelValues(r)
	}
	c.migrations.WithLabelValues("ok")
	c.migrations.WithLabelValues("failed")
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Login counts a login attempt with the given result.
func (c *Collector) Login(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) SessionCreated() { c.sessionsCreated.Inc() }

func (c *Collector) SessionsEvicted(n int) { c.sessionsEvicted.Add(float64(n)) }

func (c *Collector) SessionsExpired(n int) { c.sessionsExpired.Add(float64(n)) }

func (c *Collector) SessionCount(n int) { c.sessionsActive.Set(float64(n)) }

func (c *Collector) PasswordMigration(ok bool) {
	if ok {
		c.migrations.WithLabelValues("ok").Inc()
		return
	}
	c.migrations.WithLabelValues("failed").Inc()
}
