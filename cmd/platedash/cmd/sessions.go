package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/platedash/auth"
)

var sessionsJSONOutput bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and end dashboard sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, err := openCLIService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		sessions, err := svc.ListActiveSessions(cmd.Context())
		if err != nil {
			return err
		}
		if sessionsJSONOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}
		return printSessions(cmd.OutOrStdout(), sessions)
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "End every session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, err := openCLIService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		if err := svc.ClearAllSessions(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All sessions ended.")
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired sessions from the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, err := openCLIService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		n, err := svc.PruneExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsClearCmd, sessionsPruneCmd)
	sessionsListCmd.Flags().BoolVar(&sessionsJSONOutput, "json", false, "Output sessions as JSON")
}

// printSessions writes one row per session. IDs are shortened; the full
// value is a bearer credential.
func printSessions(w io.Writer, sessions []auth.SessionInfo) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No active sessions.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tLAST USED\tEXPIRES\tUSER AGENT")
	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id,
			s.CreatedAt.Format(time.RFC3339),
			s.LastUsed.Format(time.RFC3339),
			s.ExpiresAt.Format(time.RFC3339),
			s.UserAgent)
	}
	return tw.Flush()
}
