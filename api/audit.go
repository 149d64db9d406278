package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditSessionRevoked   AuditEvent = "session_revoked"
	AuditSessionsCleared  AuditEvent = "sessions_cleared"
	AuditSessionsPruned   AuditEvent = "sessions_pruned"
	AuditPasswordChanged  AuditEvent = "password_changed"
	AuditPasswordMigrated AuditEvent = "password_migrated"
	AuditAPIKeyRotated    AuditEvent = "api_key_rotated"
	AuditAPIKeyRejected   AuditEvent = "api_key_rejected"
)

// sessionRefLen is how much of a session ID may appear in logs.
const sessionRefLen = 8

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
	clock  clock.Clock
	alerts *alertMonitor
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		clock:  clock.New(),
	}
}

// log writes a structured audit log entry. Every entry gets its own audit ID
// so it can be referenced from alerts and support requests.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("audit_id", uuid.NewString()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", al.clock.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	al.alerts.recordEvent(event)
}

// logFailure logs a rejected request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// sessionRef is a log-safe reference to a session: a prefix too short to be
// replayed as a token.
func sessionRef(id string) slog.Attr {
	if len(id) > sessionRefLen {
		id = id[:sessionRefLen]
	}
	return slog.String("session_ref", id)
}
