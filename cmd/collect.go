package cmd

import (
	"fmt"

	"multitrack/core/ledger"
	"multitrack/model"

	"github.com/spf13/cobra"
)

var collectAs string

var collectCmd = &cobra.Command{
	Use:   "collect <publication-id>",
	Short: "Collect a publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profileID, pubID, err := model.ParseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.ledger.Collect(cmd.Context(), ledger.CollectRequest{
			CollectorID: collectAs,
			ProfileID:   profileID,
			PubID:       pubID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "collect submitted: %s\n", pending.Ref)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringVarP(&collectAs, "as", "a", "", "collecting profile id")
	collectCmd.MarkFlagRequired("as")
}
