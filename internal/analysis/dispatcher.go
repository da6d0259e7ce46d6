package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/tokwatch/internal/store"
	"github.com/jonathan/tokwatch/internal/types"
)

// DefaultItemTimeout bounds one analyzer or store call made on behalf of a
// single video. A hung external call must never hang the whole batch.
const DefaultItemTimeout = 60 * time.Second

// Store is the persistence contract the dispatcher needs.
type Store interface {
	FindUnanalyzed(ctx context.Context, limit int) ([]types.Video, error)
	FindUnanalyzedByIDs(ctx context.Context, ids []uuid.UUID) ([]types.Video, error)
	VideoComments(ctx context.Context, videoID uuid.UUID) ([]types.Comment, error)
	SaveAnalysis(ctx context.Context, analysis *types.SentimentAnalysis) error
}

// BatchResult summarizes one analysis batch.
type BatchResult struct {
	Requested int  `json:"requested"`
	Analyzed  int  `json:"analyzed"`
	Failed    int  `json:"failed"`
	Deferred  int  `json:"deferred"`
	Halted    bool `json:"halted"`
}

// Dispatcher selects videos lacking an analysis and fans them out to the
// analyzer with bounded concurrency. Analysis runs on its own cadence,
// decoupled from collection, so its worker pool is sized independently.
type Dispatcher struct {
	store    Store
	analyzer Analyzer
	workers  int
	retries  int
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. workers bounds concurrent analyzer
// calls; retries is how many extra attempts a malformed response gets;
// timeout bounds each analyzer and store call (DefaultItemTimeout when
// non-positive).
func NewDispatcher(st Store, analyzer Analyzer, workers, retries int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultItemTimeout
	}
	return &Dispatcher{store: st, analyzer: analyzer, workers: workers, retries: retries, timeout: timeout}
}

// RunBatch analyzes up to limit videos that have no analysis record yet.
// Running it twice in succession is safe: the second run finds nothing to
// do, and a concurrent save of the same video is treated as success.
func (d *Dispatcher) RunBatch(ctx context.Context, limit int) (BatchResult, error) {
	videos, err := d.store.FindUnanalyzed(ctx, limit)
	if err != nil {
		return BatchResult{}, err
	}
	return d.process(ctx, videos)
}

// RunForVideos analyzes the given videos if (and only if) they still lack an
// analysis record.
func (d *Dispatcher) RunForVideos(ctx context.Context, ids []uuid.UUID) (BatchResult, error) {
	videos, err := d.store.FindUnanalyzedByIDs(ctx, ids)
	if err != nil {
		return BatchResult{}, err
	}
	return d.process(ctx, videos)
}

func (d *Dispatcher) process(ctx context.Context, videos []types.Video) (BatchResult, error) {
	result := BatchResult{Requested: len(videos)}
	if len(videos) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range videos {
		video := videos[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				result.Deferred++
				mu.Unlock()
				return nil
			}

			err := d.analyzeOne(gctx, &video)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Analyzed++
			case errors.Is(err, ErrQuotaExceeded):
				// Halt the batch; whatever finished keeps its results.
				result.Halted = true
				result.Deferred++
				return err
			case errors.Is(err, ErrProviderUnavailable),
				errors.Is(err, context.Canceled),
				errors.Is(err, context.DeadlineExceeded):
				result.Deferred++
			default:
				result.Failed++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// analyzeOne runs one video through the analyzer with bounded retries on
// malformed responses, then persists the result. A conflict on save means a
// concurrent run already analyzed this video; that is success. Every
// external call is given its own deadline so one hung call cannot stall
// the batch.
func (d *Dispatcher) analyzeOne(ctx context.Context, video *types.Video) error {
	comments, err := d.videoComments(ctx, video.ID)
	if err != nil {
		return err
	}

	var analysis *types.SentimentAnalysis
	for attempt := 0; ; attempt++ {
		analysis, err = d.analyze(ctx, video, comments)
		if err == nil {
			break
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) && attempt < d.retries {
			slog.Warn("retrying after malformed analysis response",
				"video", video.ExternalID, "attempt", attempt+1, "reason", malformed.Reason)
			continue
		}
		if errors.As(err, &malformed) {
			slog.Error("analysis failed terminally for video",
				"video", video.ExternalID, "reason", malformed.Reason, "raw", malformed.Raw)
		}
		return err
	}

	if err := d.saveAnalysis(ctx, analysis); err != nil {
		if errors.Is(err, store.ErrAnalysisExists) {
			return nil
		}
		return err
	}

	slog.Info("analysis saved",
		"video", video.ExternalID, "sentiment", analysis.Sentiment, "score", analysis.Score)
	return nil
}

func (d *Dispatcher) analyze(ctx context.Context, video *types.Video, comments []types.Comment) (*types.SentimentAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.analyzer.Analyze(ctx, video, comments)
}

func (d *Dispatcher) videoComments(ctx context.Context, videoID uuid.UUID) ([]types.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.store.VideoComments(ctx, videoID)
}

func (d *Dispatcher) saveAnalysis(ctx context.Context, analysis *types.SentimentAnalysis) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.store.SaveAnalysis(ctx, analysis)
}
