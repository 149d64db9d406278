package api

import (
	"net/http"
)

// ChangePassword handles POST /settings/password. It ends every session,
// including the caller's.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangePasswordRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	valid, err := a.svc.VerifyPassword(r.Context(), req.CurrentPassword)
	if err != nil {
		mapError(w, err)
		return
	}
	if !valid {
		a.audit.logFailure(AuditLoginFailure, r, "invalid current password on password change")
		writeError(w, http.StatusForbidden, "current password is incorrect")
		return
	}
	if err := a.svc.ChangePassword(r.Context(), req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditPasswordChanged, r)
	clearSessionCookie(w, r)
	clearCSRFCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// RotateAPIKey handles POST /settings/apikey/rotate.
func (a *API) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := a.svc.RotateAPIKey(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditAPIKeyRotated, r)
	writeJSON(w, http.StatusOK, RotateAPIKeyResponse{APIKey: key})
}
