// Package main provides the tokwatch command: the collection and analysis
// pipeline for short-form video sentiment.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/tokwatch/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tokwatch",
	Short: "Short-form video sentiment pipeline",
	Long:  "tokwatch discovers short-form videos by keyword, ingests them with their viewer comments, and produces AI sentiment analyses over the collected discussion.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Init(verbose)
	},
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
