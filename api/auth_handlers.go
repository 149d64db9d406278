package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/metrics"
)

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	clientIP := a.extractClientIP(r)

	// Check rate limits before any hashing: global, then IP.
	if blocked, retryAfter := a.globalLimiter.check(); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "global rate limited")
		a.logins.Login(metrics.LoginRateLimited)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		a.logins.Login(metrics.LoginRateLimited)
		writeRateLimited(w, retryAfter)
		return
	}

	req, ok := decodeJSON[LoginRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	legacy, err := a.svc.NeedsMigration(r.Context())
	if err != nil {
		a.loginError(w, r, err)
		return
	}

	id, err := a.svc.Login(r.Context(), req.Password, r.UserAgent())
	if errors.Is(err, auth.ErrInvalidPassword) {
		a.globalLimiter.recordFailure()
		a.ipLimiter.recordFailure(clientIP)
		a.audit.logFailure(AuditLoginFailure, r, "invalid password",
			slog.String("client_ip", clientIP))
		a.logins.Login(metrics.LoginFailure)
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		a.loginError(w, r, err)
		return
	}

	a.ipLimiter.recordSuccess(clientIP)
	a.logins.Login(metrics.LoginSuccess)

	info, err := a.svc.SessionInfo(r.Context(), id)
	if err != nil || info == nil {
		// Evicted or unreadable straight after creation; let the client retry.
		a.loginError(w, r, err)
		return
	}
	writeSessionCookie(w, r, id, info.ExpiresAt)
	writeCSRFCookie(w, r, info.ExpiresAt)
	a.audit.log(AuditLoginSuccess, r, sessionRef(id), slog.String("client_ip", clientIP))

	if legacy {
		if still, err := a.svc.NeedsMigration(r.Context()); err == nil && !still {
			a.audit.log(AuditPasswordMigrated, r)
		}
	}
	writeJSON(w, http.StatusOK, LoginResponse{ExpiresAt: info.ExpiresAt})
}

// loginError answers a login that failed for reasons other than the password
// with the same generic message, and logs the cause.
func (a *API) loginError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.audit.logger.ErrorContext(r.Context(), "login failed", "error", err)
	}
	a.logins.Login(metrics.LoginError)
	writeError(w, http.StatusUnauthorized, "invalid password")
}

// Logout handles POST /auth/logout. It always succeeds.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionCookie(r); id != "" {
		if _, err := a.svc.InvalidateSession(r.Context(), id); err != nil {
			a.audit.logger.ErrorContext(r.Context(), "logout failed", "error", err)
		} else {
			a.audit.log(AuditLogout, r, sessionRef(id))
		}
	}
	clearSessionCookie(w, r)
	clearCSRFCookie(w, r)
	writeJSON(w, http.StatusOK, struct{}{})
}

// CurrentSession handles GET /auth/session.
func (a *API) CurrentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	resp := SessionResponse{Method: p.method}
	if p.method == MethodSession {
		info, err := a.svc.SessionInfo(r.Context(), p.sessionID)
		if err != nil {
			mapError(w, err)
			return
		}
		resp.Session = info
	}
	writeJSON(w, http.StatusOK, resp)
}
