package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// putCmd binds a value to a key
var putCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Bind a value to a key",
	Long:  "Bind a value to a key, replacing the current value if the key is already present",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]
		err := withSession(true, func(ctx context.Context, s *session) error {
			found, err := s.tree.Exists(ctx, key)
			if err != nil {
				return err
			}
			if found {
				return s.tree.Update(ctx, key, value)
			}
			return s.tree.Add(ctx, key, value)
		})
		if err != nil {
			wrapFatalln("put "+key, err)
			return
		}
	},
}

func init() {
	addCollectFlag(putCmd)
	rootCmd.AddCommand(putCmd)
}
