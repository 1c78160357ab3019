package cmd

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/oneconcern/porcupine/pkg/porcupine"
	"github.com/spf13/cobra"
)

// statsCmd prints the structure of the tree and the activity of its node cache
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print statistics about the tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var stats porcupine.Stats
		err := withSession(false, func(ctx context.Context, s *session) error {
			// all nodes are visited, so that the cache statistics cover the whole tree
			if err := s.tree.Check(ctx); err != nil {
				return err
			}
			stats = s.tree.Stats()
			return nil
		})
		if err != nil {
			wrapFatalln("tree statistics", err)
			return
		}

		table := uitable.New()
		table.AddRow("tree:", porcupineFlags.tree.name)
		table.AddRow("strategy:", stats.Strategy)
		table.AddRow("height:", stats.Height)
		table.AddRow("count:", stats.Count)
		table.AddRow("extent:", units.BytesSize(float64(stats.Extent)))
		table.AddRow("contention:", stats.Contention)
		table.AddRow("nodes loaded:", stats.Nest.Loads)
		table.AddRow("nodes resident:", stats.Nest.Loaded)
		table.AddRow("resident size:", units.BytesSize(float64(stats.Nest.Resident)))
		table.AddRow("cache budget:", units.BytesSize(float64(stats.Nest.Budget)))
		table.AddRow("evictions:", stats.Nest.Evictions)

		fmt.Fprintln(cmd.OutOrStdout(), table)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
