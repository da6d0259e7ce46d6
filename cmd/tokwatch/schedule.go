package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jonathan/tokwatch/internal/jobs"
	"github.com/jonathan/tokwatch/internal/types"
)

var (
	scheduleSpec    string
	scheduleAnalyze bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run collection jobs on a cron schedule",
	Long: `Start a long-running scheduler that triggers a collection job for the
TOKWATCH_KEYWORDS list on the given cron expression. A tick that fires while
the previous job is still running is skipped, not queued.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 */6 * * *", "Cron expression for job triggers")
	scheduleCmd.Flags().BoolVar(&scheduleAnalyze, "analyze", true, "Run the analysis phase after each ingestion")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Keywords) == 0 {
		return fmt.Errorf("TOKWATCH_KEYWORDS must be set for scheduled runs")
	}

	c := cron.New()
	_, err = c.AddFunc(scheduleSpec, func() {
		job, err := a.runner.Start(cmd.Context(), jobs.StartParams{
			Keywords:      a.cfg.Keywords,
			MaxPerKeyword: a.cfg.MaxVideos,
			Analyze:       scheduleAnalyze,
			Type:          types.JobTypeScheduled,
		})
		if err != nil {
			if errors.Is(err, jobs.ErrAlreadyRunning) {
				slog.Warn("skipping scheduled run, previous job still in progress")
				return
			}
			slog.Error("failed to start scheduled job", "error", err)
			return
		}
		slog.Info("scheduled job started", "job", job.ID, "keywords", len(job.Keywords))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", scheduleSpec, err)
	}

	c.Start()
	slog.Info("scheduler started", "cron", scheduleSpec, "keywords", len(a.cfg.Keywords))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down scheduler")
	<-c.Stop().Done()
	a.runner.Wait()
	return nil
}
