package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// lookupCmd prints the entry responsible for a key
var lookupCmd = &cobra.Command{
	Use:   "lookup KEY",
	Short: "Print the entry responsible for a key",
	Long: `Print the entry responsible for a key: the entry with the smallest key greater than or equal to KEY,
or the entry with the greatest key when KEY is above all keys`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := withSession(false, func(ctx context.Context, s *session) error {
			key, value, err := s.tree.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", color.YellowString(key), value)
			return err
		})
		if err != nil {
			wrapFatalln("lookup "+args[0], err)
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
