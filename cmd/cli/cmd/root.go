// Package cmd implements the CLI subcommand surface, grounded on
// original_source/crates/cli/src/commands/* for the operation set and
// adopting spf13/cobra (sourced from the wider retrieval pack rather than
// the teacher itself, which ships no CLI binary) for the command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "query-cli",
	Short: "Command-line client for a query server instance",
	Long:  "query-cli drives a running query server's admin API: pushing assets, functions and plugins, running migrations, managing branches, tokens and users.",
}

// Execute runs the CLI, returning any error the invoked subcommand raised.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "query server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (overrides QUERY_CLI_TOKEN)")
}
