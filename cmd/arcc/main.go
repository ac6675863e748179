package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"arcc/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "arcc",
	Short: "ARC analysis and optimization pipeline",
	Long: `arcc inserts and optimizes reference counting in typed IR: borrow inference,
retain/release insertion and elimination, reset/reuse, drop descriptors and
FBIP checks`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupCommand,
	PersistentPostRun: teardownCommand,
}

// errReported means the command already printed why it failed.
var errReported = errors.New("errors reported")

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(optCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	registerFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "arcc: %v\n", err)
		}
		os.Exit(1)
	}
}

// registerFlags defines the global flags on flags.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "project file (default: nearest arcc.toml)")
	flags.String("runtime", "atomic", "reference count flavor (atomic|single)")
	flags.Int("jobs", 0, "max parallel function workers (0=auto)")
	flags.String("fbip", "diagnostic", "fbip mode for functions without a marker (off|diagnostic|required)")
	flags.String("cache", "on", "disk cache: on, off or a directory")
	flags.String("stats", "", "write per-function JSON stats to this file (- for stderr)")
	flags.Lookup("stats").NoOptDefVal = "-"
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("ui", "auto", "progress view (auto|on|off)")
	flags.String("format", "pretty", "diagnostic format (pretty|short|json|sarif)")
	flags.Bool("timings", false, "report stage timings")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics per function")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0=off)")
}
