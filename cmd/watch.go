package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multitrack/core/watch"
	"multitrack/core/workflow"
	"multitrack/logger"

	"github.com/spf13/cobra"
)

var (
	watchOwner  string
	watchDir    string
	watchSettle time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Publish audio files dropped into a directory as originals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		dir := watchDir
		if dir == "" {
			dir = cfg.WatchDir
		}
		out := cmd.OutOrStdout()
		w := watch.New(dir, []string{".wav", ".mp3", ".ogg"}, watchSettle, func(ctx context.Context, path string) error {
			draft := &workflow.Draft{
				Audio: workflow.AudioFromPath(path, audioType(path)),
				Title: trackName(path),
			}
			res, err := a.publish(ctx, watchOwner, draft, out)
			if err != nil {
				return err
			}
			logger.Info("[Watch] 发布成功", logger.String("path", path), logger.String("content", res.ContentLocator))
			return nil
		})
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchOwner, "owner", "o", "", "profile id to publish as")
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch (default WATCH_DIR)")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 2*time.Second, "quiet period before a file is published")
	watchCmd.MarkFlagRequired("owner")
}
