package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/netask/internal/tui"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	configPath  string
	metricsAddr string
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "netask",
	Short: "Queued form dispatch and file fetching over HTTP",
	Long: `
  ⇅ netask

netask posts form-encoded requests through a retrying request queue and
interprets the JSON result envelope of the response. It also downloads files
with progress reporting.

Get started:
  netask post URL -p key=value     Dispatch a request
  netask fetch URL DEST            Download a file
  netask replay FILE               Re-send saved requests
  netask probe                     Check configured endpoints`,
	Version:          versionString(),
	SilenceUsage:     true,
	SilenceErrors:    true,
	PersistentPreRun: setupLogging,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var r reported
		if !errors.As(err, &r) {
			fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("Error: ")+err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults are used when empty or missing)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log queue, dispatch and fetch activity to stderr")
}

func setupLogging(cmd *cobra.Command, args []string) {
	if !verbose {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func versionString() string {
	return fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = versionString()
}

// SetGitCommit sets the commit the binary was built from.
func SetGitCommit(c string) {
	gitCommit = c
	rootCmd.Version = versionString()
}
