package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/observability"
)

var analyzeLimit int

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video-ids...]",
	Short: "Analyze collected videos that have no sentiment record yet",
	Long: `Run one analysis batch. Without arguments the oldest unanalyzed videos are
picked up; with arguments only the given video IDs are considered.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 0, "Maximum videos to analyze")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.dispatcher == nil {
		return fmt.Errorf("GEMINI_API_KEY is required for analysis")
	}

	limit := analyzeLimit
	if limit <= 0 {
		limit = a.cfg.AnalysisBatchSize
	}

	var result analysis.BatchResult
	if len(args) > 0 {
		ids := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid video ID %q: %w", arg, err)
			}
			ids = append(ids, id)
		}
		result, err = a.dispatcher.RunForVideos(cmd.Context(), ids)
	} else {
		result, err = a.dispatcher.RunBatch(cmd.Context(), limit)
	}

	observability.NewPrinter(os.Stdout).PrintBatchResult(result)
	return err
}
