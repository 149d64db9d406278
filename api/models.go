package api

import (
	"time"

	"github.com/jmcleod/platedash/auth"
)

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Authentication methods reported by GET /auth/session.
const (
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

// SessionResponse is returned from GET /auth/session. Session is nil when
// the request authenticated with the API key.
type SessionResponse struct {
	Method  string            `json:"method"`
	Session *auth.SessionInfo `json:"session,omitempty"`
}

// SessionView is one entry of GET /sessions.
type SessionView struct {
	auth.SessionInfo
	Current bool `json:"current"`
}

// ListSessionsResponse is returned from GET /sessions.
type ListSessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// PruneSessionsResponse is returned from POST /sessions/prune.
type PruneSessionsResponse struct {
	Removed int `json:"removed"`
}

// ChangePasswordRequest is the JSON body for POST /settings/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RotateAPIKeyResponse is returned from POST /settings/apikey/rotate.
type RotateAPIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
