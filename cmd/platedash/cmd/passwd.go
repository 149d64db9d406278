package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Set a new administrator password",
	Long: `Reads the new password from the first line of standard input and replaces
the stored hash. Every active session is ended. Run it while the server is
stopped; the bbolt backend refuses to open a store another process holds.`,
	Args: cobra.NoArgs,
	RunE: runPasswd,
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, _ []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	svc, closeSvc, err := openCLIService(cmd)
	if err != nil {
		return err
	}
	defer closeSvc()

	if err := svc.ChangePassword(cmd.Context(), password); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Password updated; all sessions ended.")
	return nil
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given on standard input")
	}
	return line, nil
}
