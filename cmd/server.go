package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"multitrack/core/auth"
	"multitrack/core/progress"
	"multitrack/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API",
	Long:  `Serve the track browser API, publish uploads, stream progress over WebSocket and serve stored content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		hub := progress.NewHub()
		go hub.Run()
		defer hub.Stop()

		deps := server.Deps{
			Index:    a.index,
			Cache:    a.cache,
			Blobs:    a.blobs,
			Mixer:    a.mixer,
			Ledger:   a.ledger,
			Modules:  a.modules,
			Resolver: a.resolver,
			Issuer:   auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
			Hub:      hub,
		}
		if a.local != nil && cfg.LedgerMode == "local" {
			deps.Follower = a.local
		}
		return server.Run(ctx, cfg.HTTPAddr, server.New(deps).Handler(), cfg.ShutdownTimeout)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
