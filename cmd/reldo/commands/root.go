// Package commands implements the reldo CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "reldo",
	Short: "Automated code-review session orchestrator",
	Long: `Reldo delegates a review instruction to an orchestrating agent,
which reads the code, optionally fans work out to named sub-agents, and
returns the review text, metrics, and an optional structured verdict.

Configure reviews in .reldo/settings.json (see 'reldo init').`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to settings document (default .reldo/settings.json)")
	rootCmd.PersistentFlags().String("cwd", "", "Working directory for the review")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output and transcripts")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}
