package cmd

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchMethod string

// watchCmd follows a directory of stored-function source files and pushes
// whichever one changes, the live-reload workflow spec.md §6 expects a
// local development loop to offer.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and push changed .js/.ts files as stored functions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}

		log.Printf("👀 watching %s for changes", dir)
		client := newClient()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !isScriptFile(event.Name) {
					continue
				}
				if err := pushChangedFunction(client, event.Name); err != nil {
					log.Printf("❌ push %s: %v", event.Name, err)
					continue
				}
				log.Printf("✅ pushed %s", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				log.Printf("❌ watch error: %v", err)
			}
		}
	},
}

func isScriptFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".js" || ext == ".ts"
}

func pushChangedFunction(client *apiClient, filePath string) error {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	routePath := "/" + strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	method := watchMethod
	if method == "" {
		method = "GET"
	}

	body := map[string]any{"method": method, "path": routePath, "function": base64.StdEncoding.EncodeToString(source)}
	_, _, err = client.do("POST", "/_/function-builder", body)
	return err
}

func init() {
	watchCmd.Flags().StringVar(&watchMethod, "method", "GET", "HTTP method to bind changed functions to")
	rootCmd.AddCommand(watchCmd)
}
