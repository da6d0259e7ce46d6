// Package types provides type definitions for structured data used throughout the tokwatch system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Video is one normalized unit of scraped content plus its metadata.
// The ExternalID is the source platform's canonical video ID and is the
// global deduplication key: the store enforces uniqueness on it.
type Video struct {
	ID            uuid.UUID `json:"id"`
	ExternalID    string    `json:"external_id"`
	URL           string    `json:"url"`
	Author        string    `json:"author_username"`
	Description   string    `json:"description"`
	Views         int64     `json:"views_count"`
	Likes         int64     `json:"likes_count"`
	Shares        int64     `json:"shares_count"`
	CommentCount  int64     `json:"comments_count"`
	Hashtags      []string  `json:"hashtags"`
	SearchKeyword string    `json:"search_keyword"`
	ScreenshotRef string    `json:"screenshot_ref,omitempty"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Comment belongs to exactly one Video and has no identity beyond it.
// Comments are deleted with their owning video (FK cascade).
type Comment struct {
	ID        uuid.UUID `json:"id"`
	VideoID   uuid.UUID `json:"video_id"`
	Author    string    `json:"author_username"`
	Text      string    `json:"comment_text"`
	Likes     int64     `json:"likes_count"`
	CreatedAt time.Time `json:"created_at"`
}
