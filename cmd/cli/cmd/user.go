package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userAdmin bool

var userCreateCmd = &cobra.Command{
	Use:   "user-create <email> <password>",
	Short: "Create a user account via /_/user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"email": args[0], "password": args[1], "admin": userAdmin}
		out, _, err := newClient().do("POST", "/_/user", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var (
	loginWrite       bool
	loginNeverExpire bool
)

var userLoginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Exchange credentials for a bearer token via /_/user/token/value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"email":        args[0],
			"password":     args[1],
			"write":        loginWrite,
			"neverExpires": loginNeverExpire,
		}
		out, _, err := newClient().do("POST", "/_/user/token/value", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant admin privileges")
	userLoginCmd.Flags().BoolVar(&loginWrite, "write", false, "request a write-capable token")
	userLoginCmd.Flags().BoolVar(&loginNeverExpire, "never-expires", false, "request a never-expiring token")
	rootCmd.AddCommand(userCreateCmd, userLoginCmd)
}
