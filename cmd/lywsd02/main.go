package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. The root command itself syncs the clock.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lywsd02 [Celsius | C | Fahrenheit | F]",
		Short: "Sync the time on a Xiaomi LYWSD02 clock",
		Long: `Connects to a Xiaomi LYWSD02 Bluetooth clock, sets it to the current local
time and optionally changes its temperature display units.

Where:
  Celsius or C sets temperature display to be in Celsius.
  Fahrenheit or F sets temperature display to be in Fahrenheit.

The device's time will always be updated to match the current local time
even if temperature setting is left blank.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		Args:    unitsArg,
		RunE:    runSync,
	}

	// main prints errors; usage is printed only for usage errors
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newWatchCmd())

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Enable debug logging")
	flags.String("name", "", "Only connect to a clock advertising this name")
	flags.String("address", "", "Only connect to the clock with this address")
	flags.Duration("connect-timeout", 0, "How long to look for and connect to the clock (default 30s)")
	flags.Duration("response-timeout", 0, "How long to wait for each reply (default 5s)")
	flags.String("time-format", "", "Time characteristic layout: lywsd02 or cts (default lywsd02)")
	flags.Bool("trace", false, "Print OpenTelemetry spans to stderr")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	return rootCmd
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	// Ctrl+C is a normal exit, not an error - exit silently
	if errors.Is(err, context.Canceled) {
		return 0
	}

	fmt.Fprintf(stderr, "ERROR: %s\n", FormatUserError(err))
	var uerr usageError
	if errors.As(err, &uerr) && cmd != nil {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, cmd.UsageString())
	}
	return 1
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
