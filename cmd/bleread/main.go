package main

import (
	"context"
	"errors"
	"fmt"
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

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bleread",
		Short: "Read one characteristic from a nearby BLE peripheral",
		Long: `Scans for a Bluetooth Low Energy peripheral advertising a configured
service, connects to the first one found, discovers the service and a
configured characteristic, reads its value and prints it as text.

Identifiers come from a YAML config file (--config) and can be overridden
with flags. Progress is printed as a log of entries; errors end the cycle.`,
		Version: formatVersion(version),
	}

	// main() prints clean errors
	root.SilenceErrors = true

	root.AddCommand(newReadCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newConfigCmd())

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flags.String("service", "", "Service UUID to scan for")
	flags.String("legacy-service", "", "Optional 16-bit service alias accepted in advertisements")
	flags.String("char", "", "Characteristic UUID to read")
	flags.Duration("timeout", 0, "Scan timeout (e.g. 5s); overrides the config file")

	root.Flags().BoolP("version", "v", false, "Show version information")
	root.SetVersionTemplate(fmt.Sprintf("bleread %s (commit %s, built %s)\n", formatVersion(version), commit, date))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
