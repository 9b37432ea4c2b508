// Package cli holds the sense command line.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "sense",
	Short:        "Classify execution-trace events and notify on expected counts",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/sense.yaml", "Path to the YAML config")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
