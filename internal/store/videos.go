package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/tokwatch/internal/types"
)

// UpsertVideo inserts a video and its comments in one transaction and
// reports whether the video was newly inserted.
//
// Deduplication is enforced by the unique constraint on external_id together
// with ON CONFLICT DO NOTHING: under concurrent attempts for the same
// external ID exactly one insert succeeds and the rest observe the existing
// row. When the video already exists nothing is written at all: engagement
// counters are frozen at first sight and comments are not re-inserted.
func (db *DB) UpsertVideo(ctx context.Context, video *types.Video, comments []types.Comment) (uuid.UUID, bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	hashtags, err := json.Marshal(emptyIfNil(video.Hashtags))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to marshal hashtags: %w", err)
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO videos (external_id, url, author_username, description,
		                     views_count, likes_count, shares_count, comments_count,
		                     hashtags, search_keyword, screenshot_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING id`,
		video.ExternalID, video.URL, video.Author, video.Description,
		video.Views, video.Likes, video.Shares, video.CommentCount,
		hashtags, video.SearchKeyword, video.ScreenshotRef,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		// Lost the race or a prior run got here first; return the existing row.
		existing, lookupErr := db.videoIDByExternalID(ctx, video.ExternalID)
		if lookupErr != nil {
			return uuid.Nil, false, lookupErr
		}
		return existing, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to insert video %s: %w", video.ExternalID, err)
	}

	for _, c := range comments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO comments (video_id, author_username, comment_text, likes_count)
			 VALUES ($1, $2, $3, $4)`,
			id, c.Author, c.Text, c.Likes,
		); err != nil {
			return uuid.Nil, false, fmt.Errorf("failed to insert comment for video %s: %w", video.ExternalID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to commit video %s: %w", video.ExternalID, err)
	}
	return id, true, nil
}

func (db *DB) videoIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM videos WHERE external_id = $1`, externalID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up video %s: %w", externalID, err)
	}
	return id, nil
}

// BulkInsertVideos upserts videos collected out of process (managed-actor
// pipelines). Comments and screenshots are typically absent in that path.
// Returns how many rows were inserted and how many were already present.
func (db *DB) BulkInsertVideos(ctx context.Context, videos []types.Video) (inserted, skipped int, err error) {
	for i := range videos {
		_, ok, err := db.UpsertVideo(ctx, &videos[i], nil)
		if err != nil {
			return inserted, skipped, err
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}

const videoColumns = `id, external_id, url, author_username, description,
	views_count, likes_count, shares_count, comments_count,
	hashtags, search_keyword, COALESCE(screenshot_ref, ''), collected_at`

func scanVideo(row pgx.Row) (*types.Video, error) {
	var v types.Video
	var hashtags []byte
	err := row.Scan(&v.ID, &v.ExternalID, &v.URL, &v.Author, &v.Description,
		&v.Views, &v.Likes, &v.Shares, &v.CommentCount,
		&hashtags, &v.SearchKeyword, &v.ScreenshotRef, &v.CollectedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hashtags, &v.Hashtags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hashtags for video %s: %w", v.ExternalID, err)
	}
	return &v, nil
}

// GetVideo retrieves a video by its internal ID.
func (db *DB) GetVideo(ctx context.Context, id uuid.UUID) (*types.Video, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	v, err := scanVideo(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// VideoComments returns the comments owned by a video, newest first.
func (db *DB) VideoComments(ctx context.Context, videoID uuid.UUID) ([]types.Comment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, video_id, author_username, comment_text, likes_count, created_at
		 FROM comments WHERE video_id = $1 ORDER BY created_at DESC`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Author, &c.Text, &c.Likes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// VideoFilters holds optional filters for listing recent videos.
type VideoFilters struct {
	Keyword string
	Days    int
	Limit   int
}

// RecentVideos lists videos collected within the filter window, newest first.
func (db *DB) RecentVideos(ctx context.Context, filters VideoFilters) ([]types.Video, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}
	if filters.Days == 0 {
		filters.Days = 7
	}
	cutoff := time.Now().AddDate(0, 0, -filters.Days)

	query := `SELECT ` + videoColumns + ` FROM videos WHERE collected_at >= $1`
	args := []any{cutoff}
	if filters.Keyword != "" {
		query += ` AND search_keyword ILIKE $2`
		args = append(args, "%"+filters.Keyword+"%")
	}
	query += fmt.Sprintf(" ORDER BY collected_at DESC LIMIT $%d", len(args)+1)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []types.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
