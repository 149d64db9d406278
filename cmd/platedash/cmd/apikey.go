package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Show or rotate the API key",
}

var apikeyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, err := openCLIService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		key, err := svc.APIKey(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var apikeyRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Replace the API key and print the new one",
	Long:  `Generates a new API key. The previous key stops working immediately.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeSvc, err := openCLIService(cmd)
		if err != nil {
			return err
		}
		defer closeSvc()

		key, err := svc.RotateAPIKey(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyShowCmd, apikeyRotateCmd)
}
