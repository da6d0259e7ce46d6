package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/collector"
	"github.com/jonathan/tokwatch/internal/config"
	"github.com/jonathan/tokwatch/internal/jobs"
	"github.com/jonathan/tokwatch/internal/llm"
	"github.com/jonathan/tokwatch/internal/store"
)

// app holds the wired collaborators shared by the CLI commands.
type app struct {
	cfg        *config.Config
	db         *store.DB
	runner     *jobs.Runner
	dispatcher *analysis.Dispatcher

	llmClient llm.Client
}

// newApp loads configuration and connects everything. The dispatcher is nil
// when no Gemini key is configured; collection still works without it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, db: db}

	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, llm.DefaultModel)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.llmClient = client
		analyzer := analysis.NewGeminiAnalyzer(client)
		a.dispatcher = analysis.NewDispatcher(db, analyzer, cfg.AnalysisWorkers, cfg.AnalysisRetries, cfg.AnalysisTimeout)
	} else {
		slog.Warn("GEMINI_API_KEY not set, analysis disabled")
	}

	var runBatch jobs.AnalysisRunner
	if a.dispatcher != nil {
		runBatch = a.dispatcher
	}
	a.runner = jobs.New(db, db, db, a.newCollector(), runBatch, jobs.Options{
		CollectWorkers: cfg.CollectWorkers,
		AnalysisBatch:  cfg.AnalysisBatchSize,
	})

	return a, nil
}

func (a *app) newCollector() collector.Collector {
	if a.cfg.Collector == config.CollectorActor {
		return collector.NewActor(a.cfg.ActorBaseURL, a.cfg.ActorToken)
	}
	return collector.NewBrowser(a.cfg.Headless, a.cfg.MaxComments)
}

func (a *app) Close() {
	if a.llmClient != nil {
		if err := a.llmClient.Close(); err != nil {
			slog.Warn("failed to close LLM client", "error", err)
		}
	}
	a.db.Close()
}
