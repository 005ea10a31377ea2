package cmd

import (
	"fmt"
	"sort"

	"multitrack/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	blobsPrefix string
	blobsStats  bool
)

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "List stored content",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewMinioStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		objects, stats, err := store.ListBlobs(cmd.Context(), blobsPrefix)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !blobsStats {
			for _, o := range objects {
				fmt.Fprintf(out, "%s  %10s  %-20s  %s\n", o.ContentID, humanize.Bytes(uint64(o.Size)), o.ContentType,
					o.LastModified.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		fmt.Fprintf(out, "bucket:        %s\n", cfg.MinioBucket)
		fmt.Fprintf(out, "objects:       %d\n", stats.TotalObjects)
		fmt.Fprintf(out, "total size:    %s\n", humanize.Bytes(uint64(stats.TotalSize)))
		if stats.TotalObjects > 0 {
			fmt.Fprintf(out, "last modified: %s\n", humanize.Time(stats.LastModified))
		}
		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-24s %d\n", t, stats.ByType[t])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blobsCmd)
	blobsCmd.Flags().StringVarP(&blobsPrefix, "prefix", "p", "", "content id prefix")
	blobsCmd.Flags().BoolVarP(&blobsStats, "stats", "s", false, "print bucket statistics instead of a listing")

	blobsCmd.Example = `  multitrack blobs
  multitrack blobs -p 3fa1
  multitrack blobs -s`
}
