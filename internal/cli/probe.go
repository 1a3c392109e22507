package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netask/internal/health"
	"github.com/netask/internal/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var probeWatch bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Health-check the configured endpoints",
	Long: `Probe every endpoint listed under "endpoints" in the configuration file.
HTTP endpoints are healthy on a 2xx or 3xx answer, gRPC endpoints when the
standard health service reports SERVING.

Examples:
  netask probe --config netask.yaml
  netask probe --config netask.yaml --watch`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVarP(&probeWatch, "watch", "w", false, "Keep probing at the configured interval")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := health.NewMetrics(registry)
	checker := health.NewChecker(cfg.Health, cfg.Endpoints, health.DefaultClients(cfg.Transport), metrics)
	defer checker.Stop()

	if cfg.Metrics.Enabled {
		srv := health.NewServer(cfg.Metrics, registry)
		go func() {
			if err := srv.Start(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), tui.ErrorStyle.Render("metrics server: "+err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	out := cmd.OutOrStdout()

	if !probeWatch {
		statuses := checker.CheckOnce(ctx)
		printProbe(out, statuses)
		for _, s := range statuses {
			if !s.Healthy {
				return reported{fmt.Errorf("endpoint %s is unhealthy", s.Name)}
			}
		}
		return nil
	}

	ticker := time.NewTicker(cfg.Health.Interval)
	defer ticker.Stop()

	for {
		statuses := checker.CheckOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "\033[H\033[2J")
		printProbe(out, statuses)
		fmt.Fprintln(out)
		fmt.Fprintln(out, tui.HelpStyle.Render("Press Ctrl+C to exit watch mode"))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printProbe(w io.Writer, statuses []health.EndpointStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, tui.Header("PROBE"))
	fmt.Fprintln(w)

	for _, s := range statuses {
		detail := tui.DimStyle.Render(fmt.Sprintf("%d  %s", s.StatusCode, s.Latency.Round(time.Millisecond)))
		if !s.Healthy {
			if s.Err != nil {
				detail = tui.ErrorStyle.Render(s.Err.Error())
			} else {
				detail = tui.ErrorStyle.Render(fmt.Sprintf("status %d", s.StatusCode))
			}
		}
		fmt.Fprintf(w, "  %s %-16s %-6s %s  %s\n",
			tui.Mark(s.Healthy),
			tui.ValueStyle.Render(s.Name),
			tui.LabelStyle.Render(string(s.Protocol)),
			s.URL,
			detail,
		)
	}
}
