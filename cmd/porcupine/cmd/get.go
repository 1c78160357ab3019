package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// getCmd prints the value bound to a key
var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value bound to a key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withSession(false, func(ctx context.Context, s *session) error {
			value, err := s.tree.Locate(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		})
		if err != nil {
			wrapFatalln("get "+args[0], err)
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
