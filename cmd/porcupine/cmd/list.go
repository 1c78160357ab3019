package cmd

import (
	"context"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/oneconcern/porcupine/pkg/errors"
	"github.com/spf13/cobra"
)

var errListed = errors.New("enough entries listed")

// listCmd lists entries in key order
var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the entries of the tree",
	Long:    "List the entries of the tree in ascending key order",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		table := uitable.New()
		table.MaxColWidth = 80
		table.AddRow("KEY", "VALUE")

		from, limit := porcupineFlags.list.from, porcupineFlags.list.limit
		err := withSession(false, func(ctx context.Context, s *session) error {
			listed := 0
			err := s.tree.Walk(ctx, func(k, v string) error {
				if k < from {
					return nil
				}
				if limit > 0 && listed >= limit {
					return errListed
				}
				table.AddRow(k, v)
				listed++
				return nil
			})
			if err != nil && !errors.Is(err, errListed) {
				return err
			}
			return nil
		})
		if err != nil {
			wrapFatalln("list entries", err)
			return
		}

		fmt.Fprintln(cmd.OutOrStdout(), table)
	},
}

func init() {
	addFromFlag(listCmd)
	addLimitFlag(listCmd)
	rootCmd.AddCommand(listCmd)
}
