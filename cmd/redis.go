package cmd

import (
	"fmt"

	"multitrack/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection used by the index cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "redis: %s db %d\n", cfg.RedisAddr(), cfg.RedisDB)
		client, err := db.ConnectRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := db.CheckRedis(cmd.Context(), client); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "redis ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
