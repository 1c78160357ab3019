package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// checkCmd verifies the integrity of the tree
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the integrity of the tree",
	Long: `Verify the integrity of the tree: all blocks are loaded and checked against their address,
the ordering of keys, the routing of internal nodes and the depth of leaves are verified`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		err := withSession(false, func(ctx context.Context, s *session) error {
			return s.tree.Check(ctx)
		})
		if err != nil {
			for _, e := range multierr.Errors(err) {
				fmt.Fprintln(out, color.RedString("✗"), e)
			}
			wrapFatalln("check tree", err)
			return
		}

		fmt.Fprintln(out, color.GreenString("ok"))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
