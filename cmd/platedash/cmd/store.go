package cmd

import "github.com/spf13/cobra"

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Credential store maintenance tools",
	Long:  `Commands for checking the credential store offline.`,
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
