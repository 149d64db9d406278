package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/platedash/api"
	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
	"github.com/jmcleod/platedash/storage/memory"
)

const password = "abc123"

type testServer struct {
	*httptest.Server
	svc   *auth.Service
	repo  *memory.Repository
	clock *clock.Mock
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ts := newServer(t)
	_, err := ts.svc.Bootstrap(context.Background(), password)
	require.NoError(t, err)
	return ts
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	clk := clock.NewMock()
	// Cookie expiry is judged by the jar against the wall clock.
	clk.Set(time.Now())
	repo := memory.NewRepository()
	svc := auth.New(repo,
		auth.WithClock(clk),
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithLogger(slog.New(slog.DiscardHandler)),
	)
	t.Cleanup(svc.Close)

	a := api.New(svc,
		api.WithLogger(slog.New(slog.DiscardHandler)),
		api.WithClock(clk),
	)
	r := chi.NewRouter()
	r.Use(api.SecurityHeaders)
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc, repo: repo, clock: clk}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers ...string) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) url(path string) string { return ts.URL + "/api/v1" + path }

func (ts *testServer) login(t *testing.T, client *http.Client, pw string) *http.Response {
	t.Helper()
	return doJSON(t, client, http.MethodPost, ts.url("/auth/login"), api.LoginRequest{Password: pw})
}

// csrf returns the X-CSRF-Token header pair for client's cookies.
func (ts *testServer) csrf(t *testing.T, client *http.Client) []string {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "platedash_csrf" {
			return []string{"X-CSRF-Token", c.Value}
		}
	}
	t.Fatal("no csrf cookie")
	return nil
}

func (ts *testServer) apiKey(t *testing.T) string {
	t.Helper()
	key, err := ts.svc.APIKey(context.Background())
	require.NoError(t, err)
	return key
}

func TestLoginAndSession(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)

	resp := ts.login(t, client, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[api.LoginResponse](t, resp)
	assert.WithinDuration(t, ts.clock.Now().Add(auth.DefaultSessionTTL), login.ExpiresAt, time.Second)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "platedash_session" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Len(t, session.Value, 64)

	resp = doJSON(t, client, http.MethodGet, ts.url("/auth/session"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cur := decode[api.SessionResponse](t, resp)
	assert.Equal(t, api.MethodSession, cur.Method)
	require.NotNil(t, cur.Session)
	assert.Equal(t, session.Value, cur.Session.ID)
	assert.Equal(t, "Go-http-client/1.1", cur.Session.UserAgent)

	resp = doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[api.ListSessionsResponse](t, resp)
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].Current)
}

func TestLoginRejected(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)

	resp := ts.login(t, client, "wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid password", decode[api.ErrorResponse](t, resp).Error)
	assert.Empty(t, resp.Cookies())

	resp = ts.login(t, client, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.url("/auth/login"), map[string]string{"password": password, "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginNotBootstrapped(t *testing.T) {
	ts := newServer(t)
	resp := ts.login(t, newClient(t), password)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid password", decode[api.ErrorResponse](t, resp).Error)
}

func TestLoginRateLimited(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)

	for i := 0; i < 5; i++ {
		resp := ts.login(t, client, "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp := ts.login(t, client, password)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	ts.clock.Add(time.Minute)
	resp = ts.login(t, client, password)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireAuth(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)

	resp := doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil, "X-API-Key", "nope")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, ts.url("/auth/session"), nil, "X-API-Key", ts.apiKey(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cur := decode[api.SessionResponse](t, resp)
	assert.Equal(t, api.MethodAPIKey, cur.Method)
	assert.Nil(t, cur.Session)

	// A forged cookie is not a session.
	u, _ := url.Parse(ts.URL)
	client.Jar.SetCookies(u, []*http.Cookie{{Name: "platedash_session", Value: "forged", Path: "/"}})
	resp = doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionExpiry(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, client, password).StatusCode)

	ts.clock.Add(auth.DefaultSessionTTL + time.Second)
	resp := doJSON(t, client, http.MethodGet, ts.url("/auth/session"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCSRF(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, client, password).StatusCode)

	resp := doJSON(t, client, http.MethodPost, ts.url("/sessions/prune"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.url("/sessions/prune"), nil, "X-CSRF-Token", "guess")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.url("/sessions/prune"), nil, ts.csrf(t, client)...)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API key requests need no CSRF token.
	resp = doJSON(t, newClient(t), http.MethodPost, ts.url("/sessions/prune"), nil, "X-API-Key", ts.apiKey(t))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevokeSession(t *testing.T) {
	ts := setupServer(t)
	admin, other := newClient(t), newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, admin, password).StatusCode)
	require.Equal(t, http.StatusOK, ts.login(t, other, password).StatusCode)

	resp := doJSON(t, admin, http.MethodGet, ts.url("/sessions"), nil)
	list := decode[api.ListSessionsResponse](t, resp)
	require.Len(t, list.Sessions, 2)
	var otherID string
	for _, s := range list.Sessions {
		if !s.Current {
			otherID = s.ID
		}
	}
	require.NotEmpty(t, otherID)

	resp = doJSON(t, admin, http.MethodDelete, ts.url("/sessions/"+otherID), nil, ts.csrf(t, admin)...)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, other, http.MethodGet, ts.url("/sessions"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, admin, http.MethodDelete, ts.url("/sessions/"+otherID), nil, ts.csrf(t, admin)...)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearSessions(t *testing.T) {
	ts := setupServer(t)
	a, b := newClient(t), newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, a, password).StatusCode)
	require.Equal(t, http.StatusOK, ts.login(t, b, password).StatusCode)

	resp := doJSON(t, a, http.MethodDelete, ts.url("/sessions"), nil, ts.csrf(t, a)...)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	for _, c := range []*http.Client{a, b} {
		resp = doJSON(t, c, http.MethodGet, ts.url("/auth/session"), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestPruneSessions(t *testing.T) {
	ts := setupServer(t)
	require.Equal(t, http.StatusOK, ts.login(t, newClient(t), password).StatusCode)
	require.Equal(t, http.StatusOK, ts.login(t, newClient(t), password).StatusCode)
	ts.clock.Add(auth.DefaultSessionTTL)

	resp := doJSON(t, newClient(t), http.MethodPost, ts.url("/sessions/prune"), nil, "X-API-Key", ts.apiKey(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[api.PruneSessionsResponse](t, resp).Removed)
}

func TestLogout(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, client, password).StatusCode)

	u, _ := url.Parse(ts.URL)
	var id string
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "platedash_session" {
			id = c.Value
		}
	}
	require.NotEmpty(t, id)

	resp := doJSON(t, client, http.MethodPost, ts.url("/auth/logout"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ok, err := ts.svc.VerifySession(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logging out without a session is fine.
	resp = doJSON(t, newClient(t), http.MethodPost, ts.url("/auth/logout"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)
	require.Equal(t, http.StatusOK, ts.login(t, client, password).StatusCode)
	csrf := ts.csrf(t, client)

	resp := doJSON(t, client, http.MethodPost, ts.url("/settings/password"),
		api.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "n3w"}, csrf...)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.url("/settings/password"),
		api.ChangePasswordRequest{CurrentPassword: password, NewPassword: ""}, csrf...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.url("/settings/password"),
		api.ChangePasswordRequest{CurrentPassword: password, NewPassword: "n3w"}, csrf...)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, ts.url("/auth/session"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "password change ends every session")

	assert.Equal(t, http.StatusUnauthorized, ts.login(t, newClient(t), password).StatusCode)
	assert.Equal(t, http.StatusOK, ts.login(t, newClient(t), "n3w").StatusCode)
}

func TestRotateAPIKey(t *testing.T) {
	ts := setupServer(t)
	client := newClient(t)
	old := ts.apiKey(t)

	resp := doJSON(t, client, http.MethodPost, ts.url("/settings/apikey/rotate"), nil, "X-API-Key", old)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	key := decode[api.RotateAPIKeyResponse](t, resp).APIKey
	assert.Len(t, key, 64)
	assert.NotEqual(t, old, key)

	resp = doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil, "X-API-Key", old)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = doJSON(t, client, http.MethodGet, ts.url("/sessions"), nil, "X-API-Key", key)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginMigratesLegacyHash(t *testing.T) {
	ts := newServer(t)
	require.NoError(t, ts.repo.Save(context.Background(), &storage.Record{
		PasswordHash: passhash.NewLegacy(password).String(),
		APIKey:       "k",
		Sessions:     map[string]storage.Session{},
	}))

	resp := ts.login(t, newClient(t), password)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h, err := passhash.Parse(ts.repo.Peek().PasswordHash)
	require.NoError(t, err)
	assert.Equal(t, passhash.Modern, h.Kind())
	assert.Equal(t, http.StatusOK, ts.login(t, newClient(t), password).StatusCode)
}

func TestOpenAPIServed(t *testing.T) {
	ts := setupServer(t)
	resp := doJSON(t, newClient(t), http.MethodGet, ts.url("/openapi.yaml"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}
