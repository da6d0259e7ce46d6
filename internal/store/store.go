// Package store provides PostgreSQL persistence for videos, comments,
// analyses and jobs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAnalysisExists is returned by SaveAnalysis when the video already has an
// analysis record. Analyses are immutable after creation, so callers treat
// this as an idempotence signal, not a failure.
var ErrAnalysisExists = errors.New("analysis already exists for video")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// schema is the durable state layout: three content tables plus the job
// audit table. external_id uniqueness on videos is the dedup invariant;
// video_id uniqueness on sentiment_analysis enforces at most one analysis
// per video.
const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	external_id      TEXT NOT NULL UNIQUE,
	url              TEXT NOT NULL,
	author_username  TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	views_count      BIGINT NOT NULL DEFAULT 0,
	likes_count      BIGINT NOT NULL DEFAULT 0,
	shares_count     BIGINT NOT NULL DEFAULT 0,
	comments_count   BIGINT NOT NULL DEFAULT 0,
	hashtags         JSONB NOT NULL DEFAULT '[]',
	search_keyword   TEXT NOT NULL DEFAULT '',
	screenshot_ref   TEXT,
	collected_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS comments (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	video_id         UUID NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	author_username  TEXT NOT NULL DEFAULT '',
	comment_text     TEXT NOT NULL,
	likes_count      BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sentiment_analysis (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	video_id         UUID NOT NULL UNIQUE REFERENCES videos(id) ON DELETE CASCADE,
	sentiment        TEXT NOT NULL,
	sentiment_score  INT NOT NULL CHECK (sentiment_score BETWEEN 1 AND 10),
	topic            TEXT NOT NULL DEFAULT '',
	key_issues       JSONB NOT NULL DEFAULT '[]',
	summary          TEXT NOT NULL DEFAULT '',
	analyzed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS jobs (
	id                 UUID PRIMARY KEY,
	job_type           TEXT NOT NULL,
	status             TEXT NOT NULL,
	keywords           JSONB NOT NULL DEFAULT '[]',
	max_per_keyword    INT NOT NULL DEFAULT 0,
	analyze            BOOLEAN NOT NULL DEFAULT FALSE,
	videos_collected   INT NOT NULL DEFAULT 0,
	comments_collected INT NOT NULL DEFAULT 0,
	videos_analyzed    INT NOT NULL DEFAULT 0,
	videos_failed      INT NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_videos_keyword ON videos (search_keyword);
CREATE INDEX IF NOT EXISTS idx_videos_collected_at ON videos (collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_comments_video ON comments (video_id);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC);
`

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
