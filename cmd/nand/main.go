// nand -- NAN (Neighbor Awareness Networking) cluster daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run())
}

// configPath is the only persistent flag the daemon takes; everything
// else lives in the YAML config and its NAND_ environment overrides
// (internal/config).
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nand",
		Short: "NAN cluster daemon",
		Long:  "nand implements NAN (Neighbor Awareness Networking) clustering over 802.11 in monitor/injection mode.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(configPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	root.AddCommand(newVersionCmd())
	return root
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
