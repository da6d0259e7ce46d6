// Package ingest enforces deduplication and persistence for collected content.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/tokwatch/internal/collector"
	"github.com/jonathan/tokwatch/internal/types"
)

// rateLimitRetries is how many extra passes a rate-limited keyword gets
// before the condition is surfaced to the caller. Re-running the sequence is
// safe: anything persisted by an earlier pass deduplicates to a skip.
const rateLimitRetries = 2

// rateLimitBackoff is the base delay before a rate-limited retry; each
// further attempt waits one multiple longer.
const rateLimitBackoff = 30 * time.Second

// Store is the persistence contract the ingestor needs. UpsertVideo must be
// atomic with respect to the external-ID uniqueness invariant.
type Store interface {
	UpsertVideo(ctx context.Context, video *types.Video, comments []types.Comment) (uuid.UUID, bool, error)
}

// CounterFunc reports per-item progress so job counters stay current while
// a keyword is still being processed. May be nil.
type CounterFunc func(ctx context.Context, videos, comments, failed int) error

// Result summarizes one keyword's ingestion.
type Result struct {
	Keyword   string `json:"keyword"`
	Found     int    `json:"found"`
	Collected int    `json:"collected"`
	Comments  int    `json:"comments"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Ingestor drives a collector sequence into the store.
type Ingestor struct {
	store   Store
	counter CounterFunc

	// backoff waits before a rate-limited retry. Overridable in tests.
	backoff func(ctx context.Context, attempt int) error
}

// New creates an Ingestor. counter may be nil.
func New(store Store, counter CounterFunc) *Ingestor {
	return &Ingestor{store: store, counter: counter, backoff: sleepBackoff}
}

func sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(time.Duration(attempt+1) * rateLimitBackoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IngestKeyword consumes the collector sequence for one keyword.
//
// Already-seen videos are skipped without touching counters, so re-running
// the same keyword never inflates them. A failure on one item (partial fetch
// or store write) is recorded and the sequence continues. A rate-limited
// sequence is retried with backoff up to rateLimitRetries times; the retried
// pass re-walks the sequence from the start and deduplication absorbs the
// overlap. A blocked sequence, or a rate limit that survives all retries,
// ends the keyword; the error is returned alongside whatever progress was
// made, and the caller decides the job-level outcome based on that progress.
func (ing *Ingestor) IngestKeyword(ctx context.Context, col collector.Collector, keyword string, maxResults int) (Result, error) {
	result := Result{Keyword: keyword}
	log := slog.With("keyword", keyword)

	for attempt := 0; ; attempt++ {
		fatal := ing.ingestOnce(ctx, col, keyword, maxResults, &result, log)
		if !errors.Is(fatal, collector.ErrRateLimited) || attempt >= rateLimitRetries {
			return result, fatal
		}
		log.Warn("rate limited, backing off before retry", "attempt", attempt+1)
		if err := ing.backoff(ctx, attempt); err != nil {
			return result, err
		}
	}
}

// ingestOnce makes one pass over the collector sequence, accumulating into
// result. Returns the fatal collector error that ended the pass, if any.
func (ing *Ingestor) ingestOnce(ctx context.Context, col collector.Collector, keyword string, maxResults int, result *Result, log *slog.Logger) error {
	var fatal error
	for raw, err := range col.Collect(ctx, keyword, maxResults) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var partial *collector.PartialItemError
			if errors.As(err, &partial) {
				log.Warn("skipping video after partial fetch", "url", partial.URL, "error", partial.Cause)
				result.Failed++
				ing.count(ctx, 0, 0, 1)
				continue
			}
			// Blocked or rate limited: the sequence is over.
			fatal = err
			break
		}

		result.Found++
		video := normalize(raw, keyword)
		comments := normalizeComments(raw.Comments)

		_, inserted, err := ing.store.UpsertVideo(ctx, video, comments)
		if err != nil {
			log.Error("failed to persist video", "external_id", raw.ExternalID, "error", err)
			result.Failed++
			ing.count(ctx, 0, 0, 1)
			continue
		}
		if !inserted {
			log.Debug("video already known, skipping", "external_id", raw.ExternalID)
			result.Skipped++
			continue
		}

		result.Collected++
		result.Comments += len(comments)
		ing.count(ctx, 1, len(comments), 0)
	}

	return fatal
}

func (ing *Ingestor) count(ctx context.Context, videos, comments, failed int) {
	if ing.counter == nil {
		return
	}
	if err := ing.counter(ctx, videos, comments, failed); err != nil {
		slog.Warn("failed to update job counters", "error", err)
	}
}

func normalize(raw *collector.RawVideo, keyword string) *types.Video {
	return &types.Video{
		ExternalID:    raw.ExternalID,
		URL:           raw.URL,
		Author:        raw.Author,
		Description:   raw.Description,
		Views:         raw.Views,
		Likes:         raw.Likes,
		Shares:        raw.Shares,
		CommentCount:  raw.CommentTotal,
		Hashtags:      raw.Hashtags,
		SearchKeyword: keyword,
		ScreenshotRef: raw.ScreenshotRef,
	}
}

func normalizeComments(raw []collector.RawComment) []types.Comment {
	comments := make([]types.Comment, 0, len(raw))
	for _, c := range raw {
		comments = append(comments, types.Comment{
			Author: c.Author,
			Text:   c.Text,
			Likes:  c.Likes,
		})
	}
	return comments
}
