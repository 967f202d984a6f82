package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "penny",
	Short: "Confidence-driven dispatch for voice transcripts",
	Long: `Penny classifies transcribed voice memos and routes them to the
right downstream service based on how confident it is.

High-confidence items dispatch immediately. Medium-confidence items ask
for confirmation first. Low-confidence items go to a background
orchestrator that gathers evidence until it is sure enough to deliver,
ask, or give up.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
