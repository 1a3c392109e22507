package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/netask/internal/fetch"
	"github.com/netask/internal/tui"
	"github.com/spf13/cobra"
)

var (
	fetchChunkSize  int
	fetchNoProgress bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL DEST",
	Short: "Download a file with a progress bar",
	Long: `Download URL into DEST. Data is written to DEST.part and renamed once
complete, so DEST is never left half-written.

Examples:
  netask fetch https://example.com/archive.tar.gz ./archive.tar.gz
  netask fetch https://example.com/big.iso big.iso --chunk-size 65536
  netask fetch https://example.com/log.txt log.txt --no-progress`,
	Args: cobra.ExactArgs(2),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().IntVar(&fetchChunkSize, "chunk-size", 0, "Bytes read per chunk (default from config)")
	fetchCmd.Flags().BoolVar(&fetchNoProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	rawURL, dest := args[0], args[1]
	if fetchChunkSize < 0 {
		return fmt.Errorf("--chunk-size must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	f := rt.fetcher(fetchChunkSize)

	if fetchNoProgress || !isTerminal(os.Stdout) {
		return fetchPlain(ctx, f, rawURL, dest, cmd.OutOrStdout())
	}
	return fetchInteractive(ctx, f, rawURL, dest)
}

func fetchPlain(ctx context.Context, f *fetch.Fetcher, rawURL, dest string, out io.Writer) error {
	p, err := f.Download(ctx, rawURL, dest, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s (%s)\n", tui.CheckMark, dest, tui.FormatBytes(p.Transferred))
	return nil
}

func fetchInteractive(ctx context.Context, f *fetch.Fetcher, rawURL, dest string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewFetchModel(rawURL, dest, cancel))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, err := f.Download(ctx, rawURL, dest, func(p fetch.Progress) {
			program.Send(tui.FetchProgressMsg{Transferred: p.Transferred, Total: p.Total})
		})
		program.Send(tui.FetchDoneMsg{Err: err})
	}()

	final, err := program.Run()
	if err != nil {
		cancel()
		<-finished
		return fmt.Errorf("progress display failed: %w", err)
	}
	// Let a cancelled download remove its partial file before exiting.
	<-finished

	m := final.(tui.FetchModel)
	if m.Cancelled() {
		return reported{context.Canceled}
	}
	if m.Err() != nil {
		return reported{m.Err()}
	}
	return nil
}
