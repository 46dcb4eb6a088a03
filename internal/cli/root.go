// Package cli implements the posd command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"poscore/internal/app"
	"poscore/internal/config"
	"poscore/internal/infrastructure"
	"poscore/pkg/contracts"
)

// DefaultConfigPath is read when --config is not given. A missing file
// leaves the defaults and POS_* environment variables in effect.
const DefaultConfigPath = "posd.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the posd command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "posd",
		Short:   "posd - offline point of sale core",
		Version: contracts.GetFullVersionString(),
		Long: `posd runs the terminal's local API and keeps sales flowing while offline.
Changes are queued in a durable outbox and delivered to the cloud when the
network returns. The license is cached on disk and bound to this machine.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for one-shot commands (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(machineIDCmd(opts))
	rootCmd.AddCommand(licenseCmd(opts))
	rootCmd.AddCommand(syncCmd(opts))

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp builds the application without starting it. One-shot commands
// log to stderr so stdout stays machine readable.
func (o *rootOptions) openApp(ctx context.Context, cmd *cobra.Command) (*app.Application, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Telemetry.EnableMetrics = false
	cfg.Telemetry.TraceExporter = "none"

	logger := infrastructure.NewWriterLogger(cmd.ErrOrStderr(), config.LoggingConfig{
		Level:  o.logLevel,
		Format: "text",
	})
	return app.New(ctx, cfg, app.WithLogger(logger))
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
