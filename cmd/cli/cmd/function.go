package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var functionPushCmd = &cobra.Command{
	Use:   "push-function <method> <path> <file>",
	Short: "Register or replace a stored function via /_/function-builder",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, path, filePath := args[0], args[1], args[2]
		source, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", filePath, err)
		}

		body := map[string]any{"method": method, "path": path, "function": base64.StdEncoding.EncodeToString(source)}
		out, _, err := newClient().do("POST", "/_/function-builder", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var functionListCmd = &cobra.Command{
	Use:   "list-functions",
	Short: "List registered stored functions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _, err := newClient().do("GET", "/_/function", nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(functionPushCmd, functionListCmd)
}
