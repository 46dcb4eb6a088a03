package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"poscore/internal/app"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API, sync worker and license checks",
		Long: `Run the terminal's local HTTP API with the WebSocket status feed, the
outbox sync worker and the periodic license re-validation. SIGINT or SIGTERM
shuts everything down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Run(ctx)
		},
	}
}
