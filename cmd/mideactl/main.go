// Mideactl is a command line client for Midea dehumidifiers and air
// conditioners.
//
// It discovers appliances on the local network, reads and changes their
// state over the LAN protocol, and falls back to the vendor cloud API for
// appliances that are not reachable directly.
//
// Usage:
//
//	mideactl [command] [flags]
//
// See 'mideactl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ewest/midea/internal/logging"
	"github.com/ewest/midea/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mideactl",
	Short: "Midea appliance control utility",
	Long: `A command line client for Midea dehumidifiers and air conditioners.

Discovers appliances on the local network, reads and changes their state
over the LAN protocol, and uses the vendor cloud API to obtain the
authentication tokens v3 appliances require.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mideactl %s\n", version.Full())
	},
}
