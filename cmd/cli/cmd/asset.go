package cmd

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var assetPushCmd = &cobra.Command{
	Use:   "push-asset <file> [name]",
	Short: "Upload a static asset via /_/asset-builder",
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

		mimeType := mime.TypeByExtension(filepath.Ext(filePath))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		body := map[string]any{
			"name":      name,
			"mime_type": mimeType,
			"data":      base64.StdEncoding.EncodeToString(data),
		}
		out, _, err := newClient().do("POST", "/_/asset-builder", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete-asset <name>",
	Short: "Deactivate a stored asset via DELETE /_/asset-builder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"name": args[0]}
		_, _, err := newClient().do("DELETE", "/_/asset-builder", body)
		if err != nil {
			return err
		}
		fmt.Println("asset deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assetPushCmd, assetDeleteCmd)
}
