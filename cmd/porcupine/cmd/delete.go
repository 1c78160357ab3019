package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// deleteCmd removes a key
var deleteCmd = &cobra.Command{
	Use:     "delete KEY",
	Short:   "Remove a key",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withSession(true, func(ctx context.Context, s *session) error {
			return s.tree.Remove(ctx, args[0])
		})
		if err != nil {
			wrapFatalln("delete "+args[0], err)
			return
		}
	},
}

func init() {
	addCollectFlag(deleteCmd)
	rootCmd.AddCommand(deleteCmd)
}
