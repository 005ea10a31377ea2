package cmd

import (
	"fmt"
	"io"
	"strings"

	"multitrack/core/tree"

	"github.com/spf13/cobra"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks <owner>",
	Short: "Print an owner's tracks as a remix tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.index.Publications(ctx, args[0])
		if err != nil {
			return err
		}
		printForest(cmd.OutOrStdout(), tree.Build(records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tracksCmd)
}

func printForest(w io.Writer, f *tree.Forest) {
	if f.Size() == 0 {
		fmt.Fprintln(w, "No tracks yet")
	}
	f.Walk(func(n *tree.Node, depth int) {
		fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), n.Record.ID, n.Record.Title)
	})
	for _, o := range f.Orphans {
		fmt.Fprintf(w, "orphan %s (parent %s not found)\n", o.ID, o.ParentID)
	}
}
