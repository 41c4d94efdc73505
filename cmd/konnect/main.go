// Command konnect runs a line-oriented TCP server or client built on the
// konnect engines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "konnect",
		Short: "Event-driven TCP server and client",
		Long: `konnect runs a TCP server or client whose connection lifecycle
(connected, data received, disconnected) is reported as events.

Settings come from an optional TOML file (--config) and are
overridden by command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts := &commonOptions{}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		serveCmd(opts),
		dialCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "konnect %s (%s)\n", version, commit)
		},
	}
}
