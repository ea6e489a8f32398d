// Package cmd wires the harvester CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexharvest",
		Short: "Archive-first harvester for legislative and gazette documents.",
		Long: `lexharvest runs jurisdiction extractors against official sources,
archives every fetched file by content digest, registers downloads and
extracted documents, and publishes schema-validated records downstream.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lexharvest.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point. The process exits non-zero when a
// run fails.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
