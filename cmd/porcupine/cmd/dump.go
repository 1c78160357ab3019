package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// dumpCmd prints the structure of the tree
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the structure of the tree",
	Long:  "Print all the nodes of the tree, with their address, entries and footprint",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := withSession(false, func(ctx context.Context, s *session) error {
			return s.tree.Dump(ctx, cmd.OutOrStdout())
		})
		if err != nil {
			wrapFatalln("dump tree", err)
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
