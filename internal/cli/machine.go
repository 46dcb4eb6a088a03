package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"poscore/internal/config"
	"poscore/internal/infrastructure"
	"poscore/internal/security"
)

func machineIDCmd(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "machine-id",
		Short: "Print this terminal's hardware-derived machine ID",
		Long: `Print the machine ID the license is bound to. With --verbose the
individual hardware factors are shown; a factor that could not be read is
reported as degraded and replaced by a placeholder.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := infrastructure.NewWriterLogger(cmd.ErrOrStderr(), config.LoggingConfig{
				Level:  opts.logLevel,
				Format: "text",
			})
			provider := security.NewProvider(logger)
			out := cmd.OutOrStdout()

			if !verbose {
				fmt.Fprintln(out, provider.GetMachineID())
				return nil
			}

			fp := provider.Probe()
			fmt.Fprintf(out, "Machine ID: %s\n", okColor.Sprint(fp.MachineID))
			printField(out, "OS", fp.OS)
			printField(out, "CPU", orDash(fp.CPUID))
			printField(out, "Board serial", orDash(fp.BoardSerial))
			printField(out, "MAC address", orDash(fp.MACAddress))
			if len(fp.Degraded) > 0 {
				printField(out, "Degraded", warnColor.Sprint(strings.Join(fp.Degraded, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the individual hardware factors")
	return cmd
}
