// Package server provides the HTTP REST API that external triggers and the
// dashboard use to drive and observe the pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/jobs"
	"github.com/jonathan/tokwatch/internal/store"
	"github.com/jonathan/tokwatch/internal/types"
)

// JobService is the orchestrator surface the API exposes.
type JobService interface {
	Start(ctx context.Context, params jobs.StartParams) (*types.Job, error)
	Cancel(jobID uuid.UUID) error
	Status(ctx context.Context, jobID uuid.UUID) (*types.Job, error)
	List(ctx context.Context, limit int) ([]types.Job, error)
	Wait()
}

// AnalysisService triggers analysis batches on demand.
type AnalysisService interface {
	RunBatch(ctx context.Context, limit int) (analysis.BatchResult, error)
	RunForVideos(ctx context.Context, ids []uuid.UUID) (analysis.BatchResult, error)
}

// Store is the read/bulk-write surface the API needs.
type Store interface {
	GetVideo(ctx context.Context, id uuid.UUID) (*types.Video, error)
	VideoComments(ctx context.Context, videoID uuid.UUID) ([]types.Comment, error)
	GetAnalysis(ctx context.Context, videoID uuid.UUID) (*types.SentimentAnalysis, error)
	RecentVideos(ctx context.Context, filters store.VideoFilters) ([]types.Video, error)
	SentimentCounts(ctx context.Context) ([]store.SentimentCount, error)
	TopKeywords(ctx context.Context, limit int) ([]store.KeywordCount, error)
	BulkInsertVideos(ctx context.Context, videos []types.Video) (int, int, error)
}

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	store      Store
	runner     JobService
	dispatcher AnalysisService
	batchSize  int
}

// Config holds server configuration.
type Config struct {
	Port              int
	AnalysisBatchSize int
}

// New creates a server wired to the given collaborators. dispatcher may be
// nil when no analyzer is configured; analysis endpoints then report 503.
func New(cfg Config, st Store, runner JobService, dispatcher AnalysisService) *Server {
	s := &Server{
		store:      st,
		runner:     runner,
		dispatcher: dispatcher,
		batchSize:  cfg.AnalysisBatchSize,
	}
	if s.batchSize < 1 {
		s.batchSize = 10
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /jobs", s.handleStartJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)

	mux.HandleFunc("POST /videos/bulk", s.handleBulkInsert)
	mux.HandleFunc("GET /videos", s.handleListVideos)
	mux.HandleFunc("GET /videos/{id}", s.handleGetVideo)

	mux.HandleFunc("POST /analysis/run", s.handleTriggerAnalysis)
	mux.HandleFunc("GET /analytics/sentiment", s.handleSentimentOverview)
	mux.HandleFunc("GET /analytics/keywords", s.handleTopKeywords)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // analysis triggers run synchronously
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening and blocks until an interrupt, then shuts down
// gracefully, letting any running job reach a terminal state.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.runner.Wait()
	return nil
}

// withLogging logs each request with method, path, status and duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withCORS allows the dashboard to call the API from another origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
