package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/tokwatch/internal/jobs"
	"github.com/jonathan/tokwatch/internal/observability"
	"github.com/jonathan/tokwatch/internal/types"
)

var (
	collectMax     int
	collectAnalyze bool
)

var collectCmd = &cobra.Command{
	Use:   "collect [keywords...]",
	Short: "Run one collection job to completion",
	Long: `Search for videos matching the given keywords, ingest new ones with their
comments, and optionally analyze them afterwards. Without arguments the
keywords come from TOKWATCH_KEYWORDS.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().IntVar(&collectMax, "max", 0, "Maximum videos per keyword")
	collectCmd.Flags().BoolVar(&collectAnalyze, "analyze", false, "Run the analysis phase after ingestion")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	keywords := args
	if len(keywords) == 0 {
		keywords = a.cfg.Keywords
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords given and TOKWATCH_KEYWORDS is empty")
	}

	max := collectMax
	if max <= 0 {
		max = a.cfg.MaxVideos
	}

	job, err := a.runner.RunSync(cmd.Context(), jobs.StartParams{
		Keywords:      keywords,
		MaxPerKeyword: max,
		Analyze:       collectAnalyze,
		Type:          types.JobTypeManual,
	})
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintJobSummary(job)
	if job.Status == types.JobFailed {
		return fmt.Errorf("job failed: %s", job.Error)
	}
	return nil
}
