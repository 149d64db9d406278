package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
)

const (
	testTTL         = 24 * time.Hour
	testMaxSessions = 5
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSession(created time.Time) storage.Session {
	return storage.Session{
		UserAgent: "test",
		CreatedAt: created,
		LastUsed:  created,
		ExpiresAt: created.Add(testTTL),
	}
}

// buildValidRecord returns a record holding n live sessions.
func buildValidRecord(t *testing.T, n int) *storage.Record {
	t.Helper()
	h, err := passhash.NewModern("abc123", bcrypt.MinCost)
	require.NoError(t, err)
	rec := &storage.Record{
		Ver:          storage.RecordVersion,
		PasswordHash: h.String(),
		APIKey:       strings.Repeat("ab", 32),
		Sessions:     map[string]storage.Session{},
	}
	for i := 0; i < n; i++ {
		id := strings.Repeat(string(rune('a'+i)), 64)
		rec.Sessions[id] = testSession(testNow.Add(-time.Duration(i+1) * time.Hour))
	}
	return rec
}

func checkStatus(t *testing.T, result verifyResult, name string) string {
	t.Helper()
	for _, c := range result.Checks {
		if c.Name == name {
			return c.Status
		}
	}
	t.Fatalf("check %q not found", name)
	return ""
}

func TestVerify_ValidRecord(t *testing.T) {
	result := verifyRecord(buildValidRecord(t, 3), testNow, testTTL, testMaxSessions)

	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.SessionCount)
	for _, c := range result.Checks {
		assert.Equal(t, statusPass, c.Status, c.Name)
	}
}

func TestVerify_EmptySessionTable(t *testing.T) {
	result := verifyRecord(buildValidRecord(t, 0), testNow, testTTL, testMaxSessions)
	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.SessionCount)
}

func TestVerify_LegacyHashWarns(t *testing.T) {
	rec := buildValidRecord(t, 1)
	rec.PasswordHash = passhash.NewLegacy("abc123").String()

	result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
	assert.True(t, result.Valid)
	assert.Equal(t, statusWarn, checkStatus(t, result, "password_hash"))
}

func TestVerify_CorruptHashFails(t *testing.T) {
	rec := buildValidRecord(t, 1)
	rec.PasswordHash = "not-a-hash"

	result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
	assert.False(t, result.Valid)
	assert.Equal(t, statusFail, checkStatus(t, result, "password_hash"))
}

func TestVerify_APIKey(t *testing.T) {
	rec := buildValidRecord(t, 0)
	rec.APIKey = ""
	result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
	assert.False(t, result.Valid)
	assert.Equal(t, statusFail, checkStatus(t, result, "api_key"))

	rec.APIKey = "short"
	result = verifyRecord(rec, testNow, testTTL, testMaxSessions)
	assert.True(t, result.Valid)
	assert.Equal(t, statusWarn, checkStatus(t, result, "api_key"))
}

func TestVerify_OverCapacity(t *testing.T) {
	result := verifyRecord(buildValidRecord(t, testMaxSessions+1), testNow, testTTL, testMaxSessions)
	assert.False(t, result.Valid)
	assert.Equal(t, statusFail, checkStatus(t, result, "session_capacity"))
}

func TestVerify_BadLifetime(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*storage.Session)
	}{
		{"ExtendedExpiry", func(s *storage.Session) { s.ExpiresAt = s.ExpiresAt.Add(time.Hour) }},
		{"UsedBeforeCreated", func(s *storage.Session) { s.LastUsed = s.CreatedAt.Add(-time.Second) }},
		{"UsedAfterExpiry", func(s *storage.Session) { s.LastUsed = s.ExpiresAt.Add(time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := buildValidRecord(t, 2)
			for id, s := range rec.Sessions {
				tt.mutate(&s)
				rec.Sessions[id] = s
				break
			}
			result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
			assert.False(t, result.Valid)
			assert.Equal(t, statusFail, checkStatus(t, result, "session_lifetimes"))
		})
	}
}

func TestVerify_ExpiredSessionsWarn(t *testing.T) {
	rec := buildValidRecord(t, 1)
	rec.Sessions["old"] = testSession(testNow.Add(-testTTL))

	result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
	assert.True(t, result.Valid, "unpruned sessions are expected between writes")
	assert.Equal(t, statusWarn, checkStatus(t, result, "expired_sessions"))
}

func TestVerify_Output(t *testing.T) {
	rec := buildValidRecord(t, 1)
	rec.APIKey = ""
	result := verifyRecord(rec, testNow, testTTL, testMaxSessions)
	result.Path = "credentials.json"

	var human bytes.Buffer
	printHumanResult(&human, result)
	assert.Contains(t, human.String(), "[FAIL] api_key: no API key")
	assert.Contains(t, human.String(), "Result: INVALID (1 error(s), 0 warning(s))")

	var out bytes.Buffer
	require.NoError(t, printJSONResult(&out, result))
	var decoded verifyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, result, decoded)
}
