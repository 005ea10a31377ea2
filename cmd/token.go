package cmd

import (
	"fmt"

	"multitrack/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenOwner   string
	tokenAddress string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL).Issue(tokenOwner, tokenAddress)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenOwner, "owner", "o", "", "profile id")
	tokenCmd.Flags().StringVar(&tokenAddress, "address", "", "wallet address owning the profile")
	tokenCmd.MarkFlagRequired("owner")
}
