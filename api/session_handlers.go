package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListSessions handles GET /sessions.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.svc.ListActiveSessions(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	p, _ := principalFromContext(r.Context())
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{
			SessionInfo: s,
			Current:     p.method == MethodSession && s.ID == p.sessionID,
		})
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: out})
}

// RevokeSession handles DELETE /sessions/{sessionID}.
func (a *API) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	removed, err := a.svc.InvalidateSession(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	a.audit.log(AuditSessionRevoked, r, sessionRef(id))
	if p, _ := principalFromContext(r.Context()); p.method == MethodSession && p.sessionID == id {
		clearSessionCookie(w, r)
		clearCSRFCookie(w, r)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearSessions handles DELETE /sessions. The caller's own session ends too.
func (a *API) ClearSessions(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ClearAllSessions(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditSessionsCleared, r)
	clearSessionCookie(w, r)
	clearCSRFCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// PruneSessions handles POST /sessions/prune.
func (a *API) PruneSessions(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.PruneExpired(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	if n > 0 {
		a.audit.log(AuditSessionsPruned, r)
	}
	writeJSON(w, http.StatusOK, PruneSessionsResponse{Removed: n})
}
