package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"poscore/internal/app"
)

func licenseCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Inspect and manage this terminal's license",
		Long: `Inspect and manage this terminal's license. A running posd serve picks up
an activation, branch binding or reset made here at its next license check
(license.validation_interval).`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the cached license",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			printLicense(cmd.OutOrStdout(), a.License.Info(), time.Now())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <license-key>",
		Short: "Activate a license key on this machine",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			info, err := a.License.ActivateLicense(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("activation failed: %w", err)
			}
			printLicense(cmd.OutOrStdout(), info, time.Now())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Re-check the license with the licensing service",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			info, err := a.License.ValidateLicense(cmd.Context())
			printLicense(cmd.OutOrStdout(), info, time.Now())
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "bind-branch <branch-id> <branch-name>",
		Short: "Bind this terminal to a branch of the licensed business",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			branchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid branch id %q: %w", args[0], err)
			}
			if err := a.License.BindToBranch(cmd.Context(), branchID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bound to branch %s (%s)\n", okColor.Sprint(args[1]), branchID)
			return nil
		}),
	})

	var confirm bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the license cache and tenant binding",
		Long: `Wipe the cached license and the business and branch binding of this
terminal. Queued sync records are kept. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --yes")
			}
			if err := a.License.ResetLicense(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), warnColor.Sprint("Installation reset"))
			return nil
		}),
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)

	return cmd
}

// withApp opens the application for the duration of one command.
func withApp(opts *rootOptions, run func(cmd *cobra.Command, a *app.Application, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := opts.openApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}
