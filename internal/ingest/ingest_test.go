package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tokwatch/internal/collector"
	"github.com/jonathan/tokwatch/internal/types"
)

// seqCollector yields a fixed sequence of (video, error) pairs.
type seqCollector struct {
	items []seqItem
}

type seqItem struct {
	video *collector.RawVideo
	err   error
}

func (c *seqCollector) Collect(_ context.Context, _ string, _ int) iter.Seq2[*collector.RawVideo, error] {
	return func(yield func(*collector.RawVideo, error) bool) {
		for _, item := range c.items {
			if !yield(item.video, item.err) {
				return
			}
		}
	}
}

// memStore records upserts and reports duplicates by external ID.
type memStore struct {
	seen    map[string]uuid.UUID
	saved   []savedVideo
	failOn  string
	saveErr error
}

type savedVideo struct {
	video    *types.Video
	comments []types.Comment
}

func newMemStore() *memStore {
	return &memStore{seen: map[string]uuid.UUID{}}
}

func (s *memStore) UpsertVideo(_ context.Context, video *types.Video, comments []types.Comment) (uuid.UUID, bool, error) {
	if video.ExternalID == s.failOn {
		return uuid.Nil, false, s.saveErr
	}
	if id, ok := s.seen[video.ExternalID]; ok {
		return id, false, nil
	}
	id := uuid.New()
	s.seen[video.ExternalID] = id
	s.saved = append(s.saved, savedVideo{video: video, comments: comments})
	return id, true, nil
}

func rawVideo(id string, comments int) *collector.RawVideo {
	v := &collector.RawVideo{
		ExternalID:  id,
		URL:         fmt.Sprintf("https://www.tiktok.com/@u/video/%s", id),
		Author:      "u",
		Description: "d",
	}
	for i := 0; i < comments; i++ {
		v.Comments = append(v.Comments, collector.RawComment{Text: fmt.Sprintf("c%d", i)})
	}
	return v
}

func TestIngestKeyword_CollectsNewVideos(t *testing.T) {
	store := newMemStore()
	col := &seqCollector{items: []seqItem{
		{video: rawVideo("1", 2)},
		{video: rawVideo("2", 3)},
	}}

	var counterVideos, counterComments int
	ing := New(store, func(_ context.Context, videos, comments, _ int) error {
		counterVideos += videos
		counterComments += comments
		return nil
	})

	res, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, 5, res.Comments)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, counterVideos)
	assert.Equal(t, 5, counterComments)

	require.Len(t, store.saved, 2)
	assert.Equal(t, "flood", store.saved[0].video.SearchKeyword)
}

func TestIngestKeyword_SkipsKnownVideosWithoutCounting(t *testing.T) {
	store := newMemStore()
	col := &seqCollector{items: []seqItem{
		{video: rawVideo("1", 1)},
		{video: rawVideo("2", 1)},
	}}
	ing := New(store, nil)

	first, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Collected)

	// Re-running the same keyword finds the same videos again; none are
	// re-inserted and no counters move.
	second, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Found)
	assert.Equal(t, 0, second.Collected)
	assert.Equal(t, 0, second.Comments)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, store.saved, 2)
}

func TestIngestKeyword_PartialItemSkipsAndContinues(t *testing.T) {
	store := newMemStore()
	col := &seqCollector{items: []seqItem{
		{video: rawVideo("1", 0)},
		{video: rawVideo("2", 0)},
		{err: &collector.PartialItemError{URL: "https://www.tiktok.com/@u/video/3", Cause: errors.New("timeout")}},
		{video: rawVideo("4", 0)},
		{video: rawVideo("5", 0)},
	}}

	var counterFailed int
	ing := New(store, func(_ context.Context, _, _, failed int) error {
		counterFailed += failed
		return nil
	})

	res, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Collected)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, counterFailed)
	assert.Len(t, store.saved, 4)
}

func TestIngestKeyword_FatalErrorEndsSequence(t *testing.T) {
	store := newMemStore()
	col := &seqCollector{items: []seqItem{
		{video: rawVideo("1", 0)},
		{err: collector.ErrBlocked},
		{video: rawVideo("2", 0)},
	}}
	ing := New(store, nil)

	res, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	assert.ErrorIs(t, err, collector.ErrBlocked)
	// Progress made before the block is kept.
	assert.Equal(t, 1, res.Collected)
	assert.Len(t, store.saved, 1)
}

// passCollector serves a different scripted sequence on each Collect call.
type passCollector struct {
	passes [][]seqItem
	calls  int
}

func (c *passCollector) Collect(_ context.Context, _ string, _ int) iter.Seq2[*collector.RawVideo, error] {
	items := c.passes[len(c.passes)-1]
	if c.calls < len(c.passes) {
		items = c.passes[c.calls]
	}
	c.calls++
	return func(yield func(*collector.RawVideo, error) bool) {
		for _, item := range items {
			if !yield(item.video, item.err) {
				return
			}
		}
	}
}

func TestIngestKeyword_RateLimitRetriesThenSucceeds(t *testing.T) {
	store := newMemStore()
	col := &passCollector{passes: [][]seqItem{
		{{video: rawVideo("1", 0)}, {err: collector.ErrRateLimited}},
		{{video: rawVideo("1", 0)}, {video: rawVideo("2", 0)}},
	}}
	ing := New(store, nil)
	var backoffs int
	ing.backoff = func(_ context.Context, _ int) error {
		backoffs++
		return nil
	}

	res, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, col.calls, "rate limit triggers one retry pass")
	assert.Equal(t, 1, backoffs)
	// Video 1 was persisted on the first pass and deduplicates on the retry.
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, store.saved, 2)
}

func TestIngestKeyword_RateLimitExhaustsRetries(t *testing.T) {
	store := newMemStore()
	col := &passCollector{passes: [][]seqItem{
		{{err: collector.ErrRateLimited}},
	}}
	ing := New(store, nil)
	var backoffs int
	ing.backoff = func(_ context.Context, _ int) error {
		backoffs++
		return nil
	}

	_, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	assert.ErrorIs(t, err, collector.ErrRateLimited)
	assert.Equal(t, 1+rateLimitRetries, col.calls)
	assert.Equal(t, rateLimitRetries, backoffs)
}

func TestIngestKeyword_BlockedIsNotRetried(t *testing.T) {
	col := &passCollector{passes: [][]seqItem{
		{{err: collector.ErrBlocked}},
	}}
	ing := New(newMemStore(), nil)
	ing.backoff = func(_ context.Context, _ int) error {
		t.Fatal("blocked sequence must not back off")
		return nil
	}

	_, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	assert.ErrorIs(t, err, collector.ErrBlocked)
	assert.Equal(t, 1, col.calls)
}

func TestIngestKeyword_StoreFailureIsPerItem(t *testing.T) {
	store := newMemStore()
	store.failOn = "2"
	store.saveErr = errors.New("connection reset")
	col := &seqCollector{items: []seqItem{
		{video: rawVideo("1", 0)},
		{video: rawVideo("2", 0)},
		{video: rawVideo("3", 0)},
	}}
	ing := New(store, nil)

	res, err := ing.IngestKeyword(context.Background(), col, "flood", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, 1, res.Failed)
}

func TestIngestKeyword_EmptySequence(t *testing.T) {
	ing := New(newMemStore(), nil)
	res, err := ing.IngestKeyword(context.Background(), &seqCollector{}, "obscure", 5)
	require.NoError(t, err)
	assert.Equal(t, Result{Keyword: "obscure"}, res)
}

func TestIngestKeyword_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := New(newMemStore(), nil)
	col := &seqCollector{items: []seqItem{{video: rawVideo("1", 0)}}}
	_, err := ing.IngestKeyword(ctx, col, "flood", 5)
	assert.ErrorIs(t, err, context.Canceled)
}
