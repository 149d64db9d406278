package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/platedash/auth"
	"github.com/jmcleod/platedash/config"
	"github.com/jmcleod/platedash/passhash"
	"github.com/jmcleod/platedash/storage"
)

type verifyResult struct {
	Path         string        `json:"path"`
	SessionCount int           `json:"session_count"`
	Valid        bool          `json:"valid"`
	Checks       []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

const (
	statusPass = "pass"
	statusFail = "fail"
	statusWarn = "warn"

	apiKeyHexLen = 64
)

func (r *verifyResult) add(name, status, detail string) {
	if status == statusFail {
		r.Valid = false
	}
	r.Checks = append(r.Checks, checkResult{Name: name, Status: status, Detail: detail})
}

// verifyRecord checks a decoded credential record against the invariants the
// server maintains. Expired sessions that have not been pruned yet are only a
// warning; they are removed lazily.
func verifyRecord(rec *storage.Record, now time.Time, ttl time.Duration, maxSessions int) verifyResult {
	result := verifyResult{SessionCount: len(rec.Sessions), Valid: true}

	// 1. Password hash.
	h, err := passhash.Parse(rec.PasswordHash)
	switch {
	case err != nil:
		result.add("password_hash", statusFail, err.Error())
	case h.IsLegacy():
		result.add("password_hash", statusWarn, "legacy digest; upgraded to bcrypt on next login")
	default:
		result.add("password_hash", statusPass, fmt.Sprintf("bcrypt cost %d", h.Cost()))
	}

	// 2. API key.
	switch {
	case rec.APIKey == "":
		result.add("api_key", statusFail, "no API key")
	case len(rec.APIKey) != apiKeyHexLen:
		result.add("api_key", statusWarn, fmt.Sprintf("%d characters, expected %d", len(rec.APIKey), apiKeyHexLen))
	default:
		result.add("api_key", statusPass, "")
	}

	// 3. Capacity.
	if len(rec.Sessions) > maxSessions {
		result.add("session_capacity", statusFail,
			fmt.Sprintf("%d sessions stored, limit is %d", len(rec.Sessions), maxSessions))
	} else {
		result.add("session_capacity", statusPass, fmt.Sprintf("%d of %d", len(rec.Sessions), maxSessions))
	}

	// 4. Lifetimes.
	lifetimeDetail := ""
	for id, s := range rec.Sessions {
		switch {
		case !s.ExpiresAt.Equal(s.CreatedAt.Add(ttl)):
			lifetimeDetail = fmt.Sprintf("session %s expires %s after creation, expected %s",
				shortID(id), s.ExpiresAt.Sub(s.CreatedAt), ttl)
		case s.LastUsed.Before(s.CreatedAt):
			lifetimeDetail = fmt.Sprintf("session %s was last used before it was created", shortID(id))
		case s.LastUsed.After(s.ExpiresAt):
			lifetimeDetail = fmt.Sprintf("session %s was last used after it expired", shortID(id))
		}
		if lifetimeDetail != "" {
			break
		}
	}
	if lifetimeDetail == "" {
		result.add("session_lifetimes", statusPass, "")
	} else {
		result.add("session_lifetimes", statusFail, lifetimeDetail)
	}

	// 5. Expired but not yet pruned.
	expired := 0
	for _, s := range rec.Sessions {
		if s.Expired(now) {
			expired++
		}
	}
	if expired == 0 {
		result.add("expired_sessions", statusPass, "")
	} else {
		result.add("expired_sessions", statusWarn,
			fmt.Sprintf("%d expired session(s) awaiting removal; run 'platedash sessions prune'", expired))
	}

	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Credential store verification: %s\n", result.Path)
	fmt.Fprintf(w, "Sessions: %d\n\n", result.SessionCount)

	failures, warnings := 0, 0
	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case statusFail:
			tag = "[FAIL]"
			failures++
		case statusWarn:
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
	}
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check the credential store for consistency",
	Long: `Loads the credential store and checks the password hash format, the API key,
the session count limit and each session's lifetime. With no path the
configured store is checked; a path ending in .db is opened as bbolt.

Exit status is 1 when a check fails and 2 when the store cannot be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	storeCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, path := cfg.StoreBackend, cfg.StorePath()
	if len(args) == 1 {
		path = args[0]
		backend = config.BackendFile
		if filepath.Ext(path) == ".db" {
			backend = config.BackendBbolt
		}
	}

	rec, err := loadRecord(cmd.Context(), backend, path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(2)
	}

	result := verifyRecord(rec, time.Now(), auth.DefaultSessionTTL, auth.DefaultMaxSessions)
	result.Path = path

	if verifyJSONOutput {
		if err := printJSONResult(cmd.OutOrStdout(), result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(cmd.OutOrStdout(), result)
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

// loadRecord reads the record at path without going through auth.Service,
// so nothing is bootstrapped or written.
func loadRecord(ctx context.Context, backend, path string) (*storage.Record, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot open store: %w", err)
	}
	repo, closeRepo, err := openRepositoryAt(backend, path)
	if err != nil {
		return nil, err
	}
	defer closeRepo()

	rec, err := repo.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.New("store holds no credential record")
	}
	return rec, err
}
