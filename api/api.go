// Package api exposes the credential and session manager over HTTP: login
// and logout, session management and credential settings.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/filecoin-project/go-clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/platedash/auth"
)

// LoginRecorder counts login attempts by result. *metrics.Collector
// implements it.
type LoginRecorder interface {
	Login(result string)
}

type nopLoginRecorder struct{}

func (nopLoginRecorder) Login(string) {}

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc            *auth.Service
	clock          clock.Clock
	ipLimiter      *ipRateLimiter
	globalLimiter  *globalRateLimiter
	audit          *auditLogger
	alerts         *alertMonitor
	logins         LoginRecorder
	trustedProxies []netip.Prefix
	basePath       string
}

//go:embed openapi.yaml
var openapiDoc []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithTrustedProxies sets the proxy ranges whose forwarding headers are
// believed when determining the client IP for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithLoginRecorder counts login attempts.
func WithLoginRecorder(r LoginRecorder) Option {
	return func(a *API) {
		a.logins = r
	}
}

// WithAlertFunc installs a callback for login failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alerts = newAlertMonitor(fn)
	}
}

// WithClock sets the time source for rate limiting and alerting.
func WithClock(c clock.Clock) Option {
	return func(a *API) {
		a.clock = c
	}
}

// WithBasePath sets the prefix the router is mounted under. It is used to
// build the docs URLs. Default "/api/v1".
func WithBasePath(p string) Option {
	return func(a *API) {
		a.basePath = p
	}
}

// New creates a new API instance.
func New(svc *auth.Service, opts ...Option) *API {
	a := &API{
		svc:      svc,
		clock:    clock.New(),
		logins:   nopLoginRecorder{},
		basePath: "/api/v1",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.logins == nil {
		a.logins = nopLoginRecorder{}
	}
	a.ipLimiter = newIPRateLimiter(a.clock)
	a.globalLimiter = newGlobalRateLimiter(a.clock)
	a.audit.clock = a.clock
	if a.alerts != nil {
		a.alerts.clock = a.clock
		a.audit.alerts = a.alerts
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDoc)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.basePath + "/openapi.yaml",
		Path:    strings.TrimLeft(a.basePath, "/") + "/docs",
	}, nil))

	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)

	r.Group(func(r chi.Router) {
		r.Use(a.RequireAuth)
		r.Use(a.CSRFMiddleware)

		r.Get("/auth/session", a.CurrentSession)

		r.Get("/sessions", a.ListSessions)
		r.Delete("/sessions", a.ClearSessions)
		r.Post("/sessions/prune", a.PruneSessions)
		r.Delete("/sessions/{sessionID}", a.RevokeSession)

		r.Post("/settings/password", a.ChangePassword)
		r.Post("/settings/apikey/rotate", a.RotateAPIKey)
	})

	return r
}
