package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var branchCreateCmd = &cobra.Command{
	Use:   "branch-create <database> <branch>",
	Short: "Snapshot a user database into a named branch via /_/branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"database": args[0], "branch": args[1]}
		out, _, err := newClient().do("POST", "/_/branch", body)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var branchListCmd = &cobra.Command{
	Use:   "branch-list [database]",
	Short: "List branch snapshots, optionally filtered by database",
	Args:  cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/_/branch"
		if len(args) == 1 {
			path += "?database=" + args[0]
		}
		out, _, err := newClient().do("GET", path, nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "branch-delete <database> <branch>",
	Short: "Delete a branch snapshot via /_/branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/_/branch?database=%s&branch=%s", args[0], args[1])
		_, _, err := newClient().do("DELETE", path, nil)
		if err != nil {
			return err
		}
		fmt.Println("branch deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(branchCreateCmd, branchListCmd, branchDeleteCmd)
}
