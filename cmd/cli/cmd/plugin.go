package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var pluginPushCmd = &cobra.Command{
	Use:   "push-plugin <file.wasm> [name]",
	Short: "Upload a WASM plugin module via /_/plugin-builder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		name := filepath.Base(filePath)
		if len(args) == 2 {
			name = args[1]
		}

		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", filePath, err)
		}

		body := map[string]any{"name": name, "data": base64.StdEncoding.EncodeToString(data)}
		out, _, err := newClient().do("POST", "/_/plugin-builder", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var pluginDeleteCmd = &cobra.Command{
	Use:   "delete-plugin <name>",
	Short: "Remove a stored WASM plugin via DELETE /_/plugin-builder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"name": args[0]}
		_, _, err := newClient().do("DELETE", "/_/plugin-builder", body)
		if err != nil {
			return err
		}
		fmt.Println("plugin deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginPushCmd, pluginDeleteCmd)
}
