// Package collector turns a search keyword into a sequence of raw video
// records. Two interchangeable backends implement the capability: a headless
// browser (Browser) and a managed scraping actor (Actor). Both normalize
// their output to the same RawVideo/RawComment shape.
package collector

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// RawComment is one scraped comment before persistence.
type RawComment struct {
	Author string
	Text   string
	Likes  int64
}

// RawVideo is one scraped content unit before persistence. ExternalID is
// the source platform's canonical video ID, derived from the URL.
type RawVideo struct {
	ExternalID    string
	URL           string
	Author        string
	Description   string
	Views         int64
	Likes         int64
	Shares        int64
	CommentTotal  int64
	Hashtags      []string
	ScreenshotRef string
	Comments      []RawComment
}

// Collector is the capability that turns a keyword into raw content.
//
// The returned sequence is lazy and finite. A fresh Collect call re-executes
// the search; there is no shared cursor state. Zero results is not an error:
// the sequence is simply empty. Per-item failures are yielded as
// *PartialItemError with a nil video and the sequence continues; fatal
// conditions (ErrBlocked, ErrRateLimited) are yielded once and end the
// sequence.
type Collector interface {
	Collect(ctx context.Context, keyword string, maxResults int) iter.Seq2[*RawVideo, error]
}

// ErrRateLimited indicates the source throttled us. Retryable: callers back
// off and defer to the next scheduled run.
var ErrRateLimited = errors.New("rate limited by source")

// ErrBlocked indicates the source refused the session (captcha or hard
// block). Fatal for the current run.
var ErrBlocked = errors.New("blocked by source")

// PartialItemError marks a single video whose detail fetch failed after it
// was listed by search. The item is skipped and the sequence continues.
type PartialItemError struct {
	URL   string
	Cause error
}

func (e *PartialItemError) Error() string {
	return fmt.Sprintf("failed to fetch video detail %s: %v", e.URL, e.Cause)
}

func (e *PartialItemError) Unwrap() error {
	return e.Cause
}
