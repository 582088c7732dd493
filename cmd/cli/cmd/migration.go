package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrationCmd = &cobra.Command{
	Use:   "migrate <database> <file.sql>",
	Short: "Run an atomic migration against a user database via /_/migration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, filePath := args[0], args[1]
		query, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", filePath, err)
		}

		body := map[string]any{"db_name": database, "query": string(query)}
		_, _, err = newClient().do("POST", "/_/migration", body)
		if err != nil {
			return err
		}
		fmt.Println("migration applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrationCmd)
}
