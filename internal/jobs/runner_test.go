package jobs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/collector"
	"github.com/jonathan/tokwatch/internal/types"
)

// memJobStore keeps job rows in memory, mirroring the durable store's
// semantics closely enough for the state machine tests.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.Job
	seen map[string]uuid.UUID
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs: map[uuid.UUID]*types.Job{},
		seen: map[string]uuid.UUID{},
	}
}

func (s *memJobStore) CreateJob(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	clone.Status = types.JobPending
	s.jobs[job.ID] = &clone
	return nil
}

func (s *memJobStore) MarkJobRunning(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = types.JobRunning
	now := time.Now()
	s.jobs[jobID].StartedAt = &now
	return nil
}

func (s *memJobStore) AddJobCounts(_ context.Context, jobID uuid.UUID, videos, comments, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	j.VideosCollected += videos
	j.CommentsCollected += comments
	j.VideosFailed += failed
	return nil
}

func (s *memJobStore) AddJobAnalyzed(_ context.Context, jobID uuid.UUID, analyzed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].VideosAnalyzed += analyzed
	return nil
}

func (s *memJobStore) FinishJob(_ context.Context, jobID uuid.UUID, status types.JobStatus, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	j.Status = status
	j.Error = errMsg
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, jobID uuid.UUID) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	clone := *j
	return &clone, nil
}

func (s *memJobStore) ListJobs(_ context.Context, limit int) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Job
	for _, j := range s.jobs {
		out = append(out, *j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpsertVideo implements ingest.Store on the same fake, deduplicating on
// external ID like the real store does.
func (s *memJobStore) UpsertVideo(_ context.Context, video *types.Video, _ []types.Comment) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.seen[video.ExternalID]; ok {
		return id, false, nil
	}
	id := uuid.New()
	s.seen[video.ExternalID] = id
	return id, true, nil
}

// keywordCollector yields scripted results per keyword.
type keywordCollector struct {
	mu      sync.Mutex
	results map[string][]*collector.RawVideo
	errs    map[string]error
	block   chan struct{} // when set, Collect waits before yielding
}

func (c *keywordCollector) Collect(ctx context.Context, keyword string, _ int) iter.Seq2[*collector.RawVideo, error] {
	return func(yield func(*collector.RawVideo, error) bool) {
		if c.block != nil {
			select {
			case <-c.block:
			case <-ctx.Done():
				return
			}
		}
		c.mu.Lock()
		videos := c.results[keyword]
		err := c.errs[keyword]
		c.mu.Unlock()
		for _, v := range videos {
			if !yield(v, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

// fixedAnalysis returns a canned batch result.
type fixedAnalysis struct {
	result analysis.BatchResult
	err    error
	calls  int
}

func (f *fixedAnalysis) RunBatch(_ context.Context, _ int) (analysis.BatchResult, error) {
	f.calls++
	return f.result, f.err
}

func raw(id string) *collector.RawVideo {
	return &collector.RawVideo{
		ExternalID: id,
		URL:        "https://www.tiktok.com/@u/video/" + id,
		Comments:   []collector.RawComment{{Text: "c"}},
	}
}

func newTestRunner(st *memJobStore, col collector.Collector, an AnalysisRunner) *Runner {
	return New(st, st, st, col, an, Options{CollectWorkers: 1, AnalysisBatch: 10})
}

func TestRunSync_Completed(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{
		"flood": {raw("1"), raw("2")},
	}}
	r := newTestRunner(st, col, nil)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 2, job.VideosCollected)
	assert.Equal(t, 2, job.CommentsCollected)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestRunSync_SkipsAlreadyKnownVideos(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{
		"flood": {raw("a"), raw("b"), raw("c")},
	}}
	r := newTestRunner(st, col, nil)

	// Video "b" was already collected by an earlier run.
	_, _, err := st.UpsertVideo(context.Background(), &types.Video{ExternalID: "b"}, nil)
	require.NoError(t, err)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 2, job.VideosCollected)
}

func TestRunSync_KeywordFailureDoesNotAbortOthers(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{
		results: map[string][]*collector.RawVideo{
			"good": {raw("1")},
		},
		errs: map[string]error{"bad": collector.ErrBlocked},
	}
	r := newTestRunner(st, col, nil)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"bad", "good"}})
	require.NoError(t, err)

	assert.Equal(t, types.JobCompletedWithErrors, job.Status)
	assert.Equal(t, 1, job.VideosCollected)
	assert.Contains(t, job.Error, "bad")
}

func TestRunSync_FailedWhenNothingCollected(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{errs: map[string]error{"flood": collector.ErrBlocked}}
	r := newTestRunner(st, col, nil)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	assert.Equal(t, types.JobFailed, job.Status)
	assert.Equal(t, 0, job.VideosCollected)
	assert.NotEmpty(t, job.Error)
}

func TestRunSync_EmptyResultsIsCompleted(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{}
	r := newTestRunner(st, col, nil)

	// No matches is a normal outcome, not a failure.
	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"obscure"}})
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
}

func TestRunSync_AnalysisPhase(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{"flood": {raw("1")}}}
	an := &fixedAnalysis{result: analysis.BatchResult{Requested: 1, Analyzed: 1}}
	r := newTestRunner(st, col, an)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}, Analyze: true})
	require.NoError(t, err)

	assert.Equal(t, 1, an.calls)
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 1, job.VideosAnalyzed)
}

func TestRunSync_AnalysisErrorDowngradesStatus(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{"flood": {raw("1")}}}
	an := &fixedAnalysis{
		result: analysis.BatchResult{Requested: 3, Analyzed: 1, Halted: true},
		err:    analysis.ErrQuotaExceeded,
	}
	r := newTestRunner(st, col, an)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}, Analyze: true})
	require.NoError(t, err)

	assert.Equal(t, types.JobCompletedWithErrors, job.Status)
	assert.Equal(t, 1, job.VideosAnalyzed)
	assert.NotEmpty(t, job.Error)
}

func TestRunSync_AnalyzeWithoutAnalyzerConfigured(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{"flood": {raw("1")}}}
	r := newTestRunner(st, col, nil)

	job, err := r.RunSync(context.Background(), StartParams{Keywords: []string{"flood"}, Analyze: true})
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 0, job.VideosAnalyzed)
}

func TestStart_RejectsSecondJob(t *testing.T) {
	st := newMemJobStore()
	block := make(chan struct{})
	col := &keywordCollector{
		results: map[string][]*collector.RawVideo{"flood": {raw("1")}},
		block:   block,
	}
	r := newTestRunner(st, col, nil)

	first, err := r.Start(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	_, err = r.Start(context.Background(), StartParams{Keywords: []string{"flood"}})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	r.Wait()

	// After the first job finishes, the lock is free again.
	job, err := r.Status(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)

	second, err := r.Start(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)
	r.Wait()
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStart_SurvivesCallerContextCancellation(t *testing.T) {
	st := newMemJobStore()
	col := &keywordCollector{results: map[string][]*collector.RawVideo{"flood": {raw("1")}}}
	r := newTestRunner(st, col, nil)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := r.Start(ctx, StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	// The request context ending must not kill the detached job.
	cancel()
	r.Wait()

	got, err := r.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
}

func TestCancel(t *testing.T) {
	st := newMemJobStore()
	block := make(chan struct{})
	col := &keywordCollector{
		results: map[string][]*collector.RawVideo{"flood": {raw("1")}},
		block:   block,
	}
	r := newTestRunner(st, col, nil)

	job, err := r.Start(context.Background(), StartParams{Keywords: []string{"flood"}})
	require.NoError(t, err)

	require.NoError(t, r.Cancel(job.ID))
	r.Wait()
	close(block)

	got, err := r.Status(context.Background(), job.ID)
	require.NoError(t, err)
	// Nothing was collected before the cancel, so the job is failed.
	assert.Equal(t, types.JobFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestCancel_NotRunning(t *testing.T) {
	r := newTestRunner(newMemJobStore(), &keywordCollector{}, nil)
	assert.ErrorIs(t, r.Cancel(uuid.New()), ErrNotRunning)
}

func TestStartParams_Validate(t *testing.T) {
	p := StartParams{Keywords: []string{" flood ", "", "roads"}}
	require.NoError(t, p.validate())
	assert.Equal(t, []string{"flood", "roads"}, p.Keywords)
	assert.Equal(t, 5, p.MaxPerKeyword)
	assert.Equal(t, types.JobTypeManual, p.Type)

	empty := StartParams{Keywords: []string{"  ", ""}}
	assert.Error(t, empty.validate())
}

func TestTerminalState(t *testing.T) {
	tests := []struct {
		name      string
		collected int
		failed    int
		firstErr  error
		canceled  bool
		want      types.JobStatus
	}{
		{"all good", 3, 0, nil, false, types.JobCompleted},
		{"partial", 2, 1, nil, false, types.JobCompletedWithErrors},
		{"keyword error with progress", 2, 1, errors.New("blocked"), false, types.JobCompletedWithErrors},
		{"keyword error without progress", 0, 1, errors.New("blocked"), false, types.JobFailed},
		{"only failures", 0, 2, nil, false, types.JobFailed},
		{"canceled with progress", 1, 0, nil, true, types.JobCompletedWithErrors},
		{"canceled without progress", 0, 0, nil, true, types.JobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := terminalState(tt.collected, tt.failed, tt.firstErr, tt.canceled)
			assert.Equal(t, tt.want, status)
		})
	}
}
