package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netask/internal/dispatch"
	"github.com/netask/internal/tui"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Re-send requests saved with post --save",
	Long: `Restore the requests stored in FILE (one JSON object per line, as written by
"netask post --save") and dispatch each of them in sync mode.

Example:
  netask replay pending.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	specs, err := dispatch.ReadBackups(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read backups: %w", err)
	}
	if len(specs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), tui.DimStyle.Render("nothing to replay"))
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := rt.dispatcher()
	out := cmd.OutOrStdout()

	start := time.Now()
	failed := 0
	for i, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		res, err := d.Do(ctx, spec)
		printReplayLine(out, i+1, spec, res, err)
		if err != nil {
			failed++
		}
	}

	printReplaySummary(out, len(specs), failed, time.Since(start))
	if failed > 0 {
		return reported{fmt.Errorf("%d of %d requests failed", failed, len(specs))}
	}
	return ctx.Err()
}

func printReplayLine(w io.Writer, n int, spec dispatch.RequestSpec, res dispatch.Result, err error) {
	detail := tui.StatusStyle(res.StatusCode).Render(fmt.Sprintf("HTTP %d", res.StatusCode))
	if err != nil {
		detail = tui.ErrorStyle.Render(failureLabel(err))
	}
	fmt.Fprintf(w, "  %s %3d %s %s  %s\n", tui.Mark(err == nil), n, tui.ArrowRight, spec.URL(), detail)
}

func printReplaySummary(w io.Writer, total, failed int, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, tui.Header("REPLAY"))
	fmt.Fprintln(w, tui.KeyValue("Requests", fmt.Sprintf("%d", total)))
	fmt.Fprintln(w, tui.KeyValue("Succeeded", fmt.Sprintf("%d", total-failed)))
	fmt.Fprintln(w, tui.KeyValue("Failed", fmt.Sprintf("%d", failed)))
	fmt.Fprintln(w, tui.KeyValue("Elapsed", elapsed.Round(time.Millisecond).String()))
}
