package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tokenWrite   bool
	tokenNoExpire bool
	tokenTTL     int64
)

var tokenCreateCmd = &cobra.Command{
	Use:   "token-create <name>",
	Short: "Mint a standalone API token via /_/token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"name":         args[0],
			"write":        tokenWrite,
			"neverExpires": tokenNoExpire,
			"ttlSeconds":   tokenTTL,
		}
		out, _, err := newClient().do("POST", "/_/token", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:  "token-list",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _, err := newClient().do("GET", "/_/token", nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:  "token-delete <name>",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, err := newClient().do("DELETE", "/_/token?name="+args[0], nil)
		if err != nil {
			return err
		}
		fmt.Println("token deleted")
		return nil
	},
}

func init() {
	tokenCreateCmd.Flags().BoolVar(&tokenWrite, "write", false, "grant write access")
	tokenCreateCmd.Flags().BoolVar(&tokenNoExpire, "never-expires", false, "mint a never-expiring token")
	tokenCreateCmd.Flags().Int64Var(&tokenTTL, "ttl-seconds", 0, "time to live in seconds (default 30 days)")
	rootCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenDeleteCmd)
}
