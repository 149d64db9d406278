package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const principalKey contextKey = iota

const (
	sessionCookieName = "platedash_session"
	apiKeyHeader      = "X-API-Key"
)

// principal describes how a request authenticated.
type principal struct {
	method    string
	sessionID string
}

// RequireAuth admits requests carrying a live session cookie or the API key
// in the X-API-Key header. Anything else gets 401.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := sessionCookie(r); id != "" {
			ok, err := a.svc.VerifySession(r.Context(), id)
			if err != nil {
				mapError(w, err)
				return
			}
			if ok {
				ctx := context.WithValue(r.Context(), principalKey, principal{method: MethodSession, sessionID: id})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		if key := r.Header.Get(apiKeyHeader); key != "" {
			ok, err := a.svc.VerifyAPIKey(r.Context(), key)
			if err != nil {
				mapError(w, err)
				return
			}
			if ok {
				ctx := context.WithValue(r.Context(), principalKey, principal{method: MethodAPIKey})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			a.audit.logFailure(AuditAPIKeyRejected, r, "invalid api key")
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		writeError(w, http.StatusUnauthorized, "authentication required")
	})
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

func sessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
