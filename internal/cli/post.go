package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/netask/internal/dispatch"
	"github.com/netask/internal/tui"
	"github.com/spf13/cobra"
)

var (
	postParams  []string
	postHeaders []string
	postSync    bool
	postJSON    bool
	postSave    string
)

var postCmd = &cobra.Command{
	Use:   "post URL",
	Short: "Dispatch a form-encoded request and print the result",
	Long: `Post form parameters to URL through the request queue and interpret the
JSON envelope of the response.

A body {"result": ...} prints the result; {"code": N, ...} with N != 0 is an
application failure. Bodies that are not JSON objects are printed as-is.

Examples:
  netask post https://api.example.com/login -p user=bob -p pass=secret
  netask post https://api.example.com/items -p page=2 --sync --json
  netask post https://api.example.com/me -H Authorization="Bearer abc"
  netask post https://api.example.com/order -p id=7 --save pending.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runPost,
}

func init() {
	postCmd.Flags().StringArrayVarP(&postParams, "param", "p", nil, "Form parameter as key=value (repeatable)")
	postCmd.Flags().StringArrayVarP(&postHeaders, "header", "H", nil, "Request header as key=value (repeatable)")
	postCmd.Flags().BoolVar(&postSync, "sync", false, "Block on the response instead of dispatching asynchronously")
	postCmd.Flags().BoolVar(&postJSON, "json", false, "Print the outcome as JSON")
	postCmd.Flags().StringVar(&postSave, "save", "", "Append the request to a backup file for later replay")
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	params, err := parseParams(postParams)
	if err != nil {
		return err
	}
	headers, err := parseParams(postHeaders)
	if err != nil {
		return err
	}
	spec := dispatch.NewRequestSpec(args[0], params)

	if postSave != "" {
		if err := appendBackup(postSave, spec); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := []dispatch.Option{dispatch.WithHeaders(headers)}
	if !postJSON && isTerminal(os.Stderr) {
		opts = append(opts, dispatch.WithIndicator(tui.NewLineIndicator(cmd.ErrOrStderr()), "Sending..."))
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if postSync {
		res, err := rt.dispatcher(opts...).Do(ctx, spec)
		return printOutcome(stdout, stderr, res, err, postJSON)
	}

	// Handlers run here, on the command goroutine, once the response is in.
	loop := dispatch.NewLoop(1)
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	var outErr error
	d := rt.dispatcher(append(opts, dispatch.WithExecutor(loop))...)
	d.Dispatch(ctx, spec, dispatch.Handler{
		OnSuccess: func(res dispatch.Result) {
			outErr = printOutcome(stdout, stderr, res, nil, postJSON)
			cancelLoop()
		},
		OnFailure: func(f *dispatch.Failure) {
			outErr = printOutcome(stdout, stderr, dispatch.Result{}, f, postJSON)
			cancelLoop()
		},
	})

	_ = loop.Run(loopCtx)
	return outErr
}

func appendBackup(path string, spec dispatch.RequestSpec) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	if err := dispatch.WriteBackup(f, spec); err != nil {
		f.Close()
		return fmt.Errorf("failed to save request: %w", err)
	}
	return f.Close()
}
