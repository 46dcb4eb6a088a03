package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"poscore/internal/app"
	"poscore/internal/exporter"
	api "poscore/pkg/contracts/api/v1"
)

const (
	deadLetterExportLimit = 10000
	serverTriggerTimeout  = 2 * time.Second
)

// errNoServer means nothing answered on the configured API address.
var errNoServer = errors.New("no server listening")

func syncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect the sync outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show pending and dead-lettered outbox records",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			ctx := cmd.Context()
			pending, err := a.Outbox.PendingCount(ctx)
			if err != nil {
				return err
			}
			dead, err := a.Outbox.DeadLetterCount(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enabled := okColor.Sprint("enabled")
			if !a.Config.Sync.Enabled {
				enabled = warnColor.Sprint("disabled")
			}
			fmt.Fprintf(out, "Sync: %s\n", enabled)
			printField(out, "Remote", orDash(a.Config.Sync.RemoteURL))
			printField(out, "Pending", pending)
			deadText := fmt.Sprint(dead)
			if dead > 0 {
				deadText = errColor.Sprint(dead)
			}
			printField(out, "Dead letters", deadText)
			return nil
		}),
	})

	localCycle := withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
		status, err := a.Worker.RunCycle(cmd.Context())
		out := cmd.OutOrStdout()
		online := okColor.Sprint("online")
		if !status.IsOnline {
			online = warnColor.Sprint("offline")
		}
		fmt.Fprintf(out, "Cycle: %s\n", online)
		printField(out, "Message", orDash(status.Message))
		printField(out, "Pending", status.PendingCount)
		printField(out, "Dead letters", status.DeadLetterCount)
		return err
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one sync cycle",
		Long: `Run one sync cycle. When posd serve answers on the configured address the
cycle is handed to its worker; otherwise it runs here in the foreground.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			resp, err := triggerServer(cmd.Context(), cfg.Server.Addr())
			if errors.Is(err, errNoServer) {
				return localCycle(cmd, args)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cycle: %s\n", okColor.Sprint("handed to running server"))
			printField(cmd.OutOrStdout(), "Message", orDash(resp.Message))
			return nil
		},
	})

	var limit, offset int
	deadLetters := &cobra.Command{
		Use:   "dead-letters",
		Short: "List records that exhausted their delivery retries",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			recs, err := a.Outbox.DeadLetters(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, okColor.Sprint("No dead letters"))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENTITY\tOPERATION\tRETRIES\tCREATED\tERROR")
			for _, rec := range recs {
				msg := ""
				if rec.ErrorMessage != nil {
					msg = *rec.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%d\t%s\t%s\n",
					rec.ID, rec.EntityType, rec.EntityID, rec.Operation, rec.RetryCount,
					rec.CreatedAt.UTC().Format(time.RFC3339), msg)
			}
			return tw.Flush()
		}),
	}
	deadLetters.Flags().IntVar(&limit, "limit", 50, "maximum records to list")
	deadLetters.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.AddCommand(deadLetters)

	var outPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export dead letters to an Excel workbook or CSV file",
		Long: `Export dead-lettered records for offline review. The format follows the
extension of --out: .csv writes CSV, anything else an Excel workbook.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app.Application, args []string) error {
			recs, err := a.Outbox.DeadLetters(cmd.Context(), deadLetterExportLimit, 0)
			if err != nil {
				return err
			}
			if err := exporter.WriteFile(outPath, recs, time.Now()); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d dead letters to %s\n", len(recs), outPath)
			return nil
		}),
	}
	export.Flags().StringVarP(&outPath, "out", "o", "dead-letters.xlsx", "output file (.xlsx or .csv)")
	cmd.AddCommand(export)

	return cmd
}

// triggerServer asks a running server to run the cycle so that only its
// worker changes record status. It returns errNoServer when the address
// refuses the connection.
func triggerServer(ctx context.Context, addr string) (api.SyncRunResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, serverTriggerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+dialAddr(addr)+"/api/sync/run", nil)
	if err != nil {
		return api.SyncRunResponse{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return api.SyncRunResponse{}, errNoServer
		}
		return api.SyncRunResponse{}, fmt.Errorf("trigger running server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return api.SyncRunResponse{}, fmt.Errorf("running server refused sync: %s", resp.Status)
	}
	var out api.SyncRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.SyncRunResponse{}, fmt.Errorf("decode sync response: %w", err)
	}
	return out, nil
}

// dialAddr turns a listen address into one a client can dial.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
