// Package jobs orchestrates collection jobs: the state machine that owns a
// job's lifecycle, counters and mutual exclusion.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/collector"
	"github.com/jonathan/tokwatch/internal/ingest"
	"github.com/jonathan/tokwatch/internal/types"
)

// ErrAlreadyRunning is returned when a job is started while another is still
// running. The second trigger is rejected, never queued.
var ErrAlreadyRunning = errors.New("an ingestion job is already running")

// ErrNotRunning is returned by Cancel when the job is not currently running.
var ErrNotRunning = errors.New("job is not running")

// Store is the job persistence contract.
type Store interface {
	CreateJob(ctx context.Context, job *types.Job) error
	MarkJobRunning(ctx context.Context, jobID uuid.UUID) error
	AddJobAnalyzed(ctx context.Context, jobID uuid.UUID, analyzed int) error
	FinishJob(ctx context.Context, jobID uuid.UUID, status types.JobStatus, errMsg string) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error)
	ListJobs(ctx context.Context, limit int) ([]types.Job, error)
}

// CounterStore updates per-item progress counters while a job runs.
type CounterStore interface {
	AddJobCounts(ctx context.Context, jobID uuid.UUID, videos, comments, failed int) error
}

// AnalysisRunner is the decoupled analysis phase invoked after ingestion.
type AnalysisRunner interface {
	RunBatch(ctx context.Context, limit int) (analysis.BatchResult, error)
}

// Options tunes the runner's pools and the post-ingestion analysis batch.
type Options struct {
	// CollectWorkers bounds concurrent per-keyword collection. The default
	// of 1 is the safe choice against source rate limits.
	CollectWorkers int
	// AnalysisBatch is how many videos the post-ingestion analysis phase
	// picks up.
	AnalysisBatch int
}

// Runner owns the job state machine. At most one ingestion job runs at a
// time; the lock lives here, in process, and the job row is the durable
// record of what happened.
type Runner struct {
	store    Store
	counters CounterStore
	videos   ingest.Store
	col      collector.Collector
	analysis AnalysisRunner // nil when no analyzer is configured
	opts     Options

	mu       sync.Mutex
	running  bool
	activeID uuid.UUID
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Runner. an may be nil to disable the analysis phase.
func New(store Store, counters CounterStore, videos ingest.Store, col collector.Collector, an AnalysisRunner, opts Options) *Runner {
	if opts.CollectWorkers < 1 {
		opts.CollectWorkers = 1
	}
	if opts.AnalysisBatch < 1 {
		opts.AnalysisBatch = 10
	}
	return &Runner{
		store:    store,
		counters: counters,
		videos:   videos,
		col:      col,
		analysis: an,
		opts:     opts,
	}
}

// StartParams are the search parameters of one job.
type StartParams struct {
	Keywords      []string
	MaxPerKeyword int
	Analyze       bool
	Type          types.JobType
}

func (p *StartParams) validate() error {
	var keywords []string
	for _, k := range p.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	p.Keywords = keywords
	if p.MaxPerKeyword <= 0 {
		p.MaxPerKeyword = 5
	}
	if p.Type == "" {
		p.Type = types.JobTypeManual
	}
	return nil
}

// Start creates a job and runs it in the background. Returns
// ErrAlreadyRunning when another job holds the ingestion lock. The job's
// lifetime is detached from the caller's context; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, params StartParams) (*types.Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	job := newJob(params)
	if err := r.store.CreateJob(ctx, job); err != nil {
		r.release()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.activeID = job.ID
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(runCtx, job)
	}()

	return job, nil
}

// RunSync creates a job and runs it to completion on the calling goroutine.
// Used by the CLI.
func (r *Runner) RunSync(ctx context.Context, params StartParams) (*types.Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.activeID = uuid.Nil
	r.mu.Unlock()

	job := newJob(params)
	if err := r.store.CreateJob(ctx, job); err != nil {
		r.release()
		return nil, err
	}

	r.run(ctx, job)
	return r.store.GetJob(context.WithoutCancel(ctx), job.ID)
}

func newJob(params StartParams) *types.Job {
	return &types.Job{
		ID:            uuid.New(),
		Type:          params.Type,
		Status:        types.JobPending,
		Keywords:      params.Keywords,
		MaxPerKeyword: params.MaxPerKeyword,
		Analyze:       params.Analyze,
	}
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.activeID = uuid.Nil
	r.cancel = nil
	r.mu.Unlock()
}

// Cancel requests cooperative cancellation of a running job. In-flight
// per-item work finishes at the next checkpoint; the job then moves to a
// terminal state reflecting the progress it made.
func (r *Runner) Cancel(jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.activeID != jobID || r.cancel == nil {
		return ErrNotRunning
	}
	r.cancel()
	return nil
}

// Wait blocks until any background job finishes. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Status returns the persisted job record.
func (r *Runner) Status(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	return r.store.GetJob(ctx, jobID)
}

// List returns recent jobs, newest first.
func (r *Runner) List(ctx context.Context, limit int) ([]types.Job, error) {
	return r.store.ListJobs(ctx, limit)
}

// run drives one job through pending -> running -> terminal.
func (r *Runner) run(ctx context.Context, job *types.Job) {
	defer r.release()

	log := slog.With("job", job.ID, "keywords", len(job.Keywords))

	// Terminal writes must survive cancellation.
	finishCtx := context.WithoutCancel(ctx)

	if err := r.store.MarkJobRunning(ctx, job.ID); err != nil {
		log.Error("failed to mark job running", "error", err)
		_ = r.store.FinishJob(finishCtx, job.ID, types.JobFailed, err.Error())
		return
	}
	log.Info("job started", "max_per_keyword", job.MaxPerKeyword, "analyze", job.Analyze)

	ing := ingest.New(r.videos, func(cctx context.Context, videos, comments, failed int) error {
		return r.counters.AddJobCounts(cctx, job.ID, videos, comments, failed)
	})

	var (
		mu        sync.Mutex
		collected int
		failed    int
		firstErr  error
	)

	g := new(errgroup.Group)
	g.SetLimit(r.opts.CollectWorkers)
	for _, keyword := range job.Keywords {
		g.Go(func() error {
			// A failed keyword never aborts the job's other keywords.
			res, err := ing.IngestKeyword(ctx, r.col, keyword, job.MaxPerKeyword)
			mu.Lock()
			defer mu.Unlock()
			collected += res.Collected
			failed += res.Failed
			if err != nil && !errors.Is(err, context.Canceled) {
				failed++
				if firstErr == nil {
					firstErr = fmt.Errorf("keyword %q: %w", keyword, err)
				}
			}
			log.Info("keyword processed", "keyword", keyword,
				"collected", res.Collected, "comments", res.Comments,
				"skipped", res.Skipped, "failed", res.Failed, "error", err)
			return nil
		})
	}
	_ = g.Wait()

	canceled := ctx.Err() != nil

	status, errMsg := terminalState(collected, failed, firstErr, canceled)

	// The analysis phase runs only for jobs that got through ingestion.
	if job.Analyze && !canceled && status != types.JobFailed && r.analysis != nil {
		res, err := r.analysis.RunBatch(ctx, r.opts.AnalysisBatch)
		if res.Analyzed > 0 {
			if cerr := r.store.AddJobAnalyzed(finishCtx, job.ID, res.Analyzed); cerr != nil {
				log.Warn("failed to update analyzed counter", "error", cerr)
			}
		}
		if err != nil {
			log.Warn("analysis phase ended early", "error", err)
			if status == types.JobCompleted {
				status = types.JobCompletedWithErrors
			}
			if errMsg == "" {
				errMsg = err.Error()
			}
		}
	}

	if err := r.store.FinishJob(finishCtx, job.ID, status, errMsg); err != nil {
		log.Error("failed to finish job", "error", err)
		return
	}
	log.Info("job finished", "status", status, "collected", collected, "failed", failed)
}

// terminalState picks the most specific terminal status: failed only when
// nothing was ingested, completed_with_errors when partial work succeeded.
func terminalState(collected, failed int, firstErr error, canceled bool) (types.JobStatus, string) {
	errMsg := ""
	if firstErr != nil {
		errMsg = firstErr.Error()
	}

	switch {
	case canceled:
		if errMsg == "" {
			errMsg = "job canceled"
		}
		if collected == 0 {
			return types.JobFailed, errMsg
		}
		return types.JobCompletedWithErrors, errMsg
	case firstErr != nil && collected == 0:
		return types.JobFailed, errMsg
	case failed > 0 && collected > 0:
		return types.JobCompletedWithErrors, errMsg
	case failed > 0:
		return types.JobFailed, errMsg
	default:
		return types.JobCompleted, ""
	}
}
