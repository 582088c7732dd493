// Command query-cli is a thin HTTP client over the admin endpoint set
// spec.md §6 reserves under "_": it never touches SQLite directly, only
// the server's own API, the way original_source/crates/cli drives the
// Rust server.
package main

import (
	"fmt"
	"os"

	"github.com/queryrun/server/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
