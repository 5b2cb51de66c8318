package main

import (
	"context"
	"os"
	"os/signal"

	"fortio.org/safecast"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jobmono/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "jobmono",
	Short: "Resolve generic job instantiations for ahead-of-time compilation",
	Long: `jobmono scans compiled modules for generic jobs instantiated with open
type arguments, traces those arguments through the call graph to every concrete
instantiation and can write closed types for them into a target module.`,
	SilenceUsage: true,
}

// main registers the subcommands and persistent flags and runs the root
// command. Interrupts cancel the running pipeline.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to "+configFileName+" (default: search upwards from the working directory)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("timings", false, "show timing information")
	pf.Bool("progress", false, "report each pipeline phase as it finishes")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	pf.Int("trace-ring-size", 4096, "events kept in ring mode")
	pf.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	fd, err := safecast.Conv[int](f.Fd())
	if err != nil {
		return false
	}
	return term.IsTerminal(fd)
}
