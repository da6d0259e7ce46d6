package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/tokwatch/internal/types"
)

// SaveAnalysis inserts an analysis record for a video. If the video already
// has one, ErrAnalysisExists is returned and nothing is written: analyses
// are created exactly once and never mutated.
func (db *DB) SaveAnalysis(ctx context.Context, analysis *types.SentimentAnalysis) error {
	keyIssues, err := json.Marshal(analysis.KeyIssues)
	if err != nil {
		return fmt.Errorf("failed to marshal key issues: %w", err)
	}
	if analysis.KeyIssues == nil {
		keyIssues = []byte("[]")
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO sentiment_analysis (video_id, sentiment, sentiment_score, topic, key_issues, summary)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (video_id) DO NOTHING`,
		analysis.VideoID, analysis.Sentiment, analysis.Score,
		analysis.Topic, keyIssues, analysis.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis for video %s: %w", analysis.VideoID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAnalysisExists
	}
	return nil
}

// GetAnalysis retrieves the analysis record for a video, or ErrNotFound.
func (db *DB) GetAnalysis(ctx context.Context, videoID uuid.UUID) (*types.SentimentAnalysis, error) {
	var a types.SentimentAnalysis
	var keyIssues []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, video_id, sentiment, sentiment_score, topic, key_issues, summary, analyzed_at
		 FROM sentiment_analysis WHERE video_id = $1`,
		videoID,
	).Scan(&a.ID, &a.VideoID, &a.Sentiment, &a.Score, &a.Topic, &keyIssues, &a.Summary, &a.AnalyzedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	if err := json.Unmarshal(keyIssues, &a.KeyIssues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key issues: %w", err)
	}
	return &a, nil
}

// FindUnanalyzed returns videos that do not yet have an analysis record,
// oldest first so backlog drains in collection order.
func (db *DB) FindUnanalyzed(ctx context.Context, limit int) ([]types.Video, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+qualifiedVideoColumns+`
		 FROM videos v
		 LEFT JOIN sentiment_analysis a ON a.video_id = v.id
		 WHERE a.id IS NULL
		 ORDER BY v.collected_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find unanalyzed videos: %w", err)
	}
	defer rows.Close()
	return collectVideos(rows)
}

// FindUnanalyzedByIDs returns the subset of the given videos that lack an
// analysis record. Used by targeted re-analysis triggers.
func (db *DB) FindUnanalyzedByIDs(ctx context.Context, ids []uuid.UUID) ([]types.Video, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+qualifiedVideoColumns+`
		 FROM videos v
		 LEFT JOIN sentiment_analysis a ON a.video_id = v.id
		 WHERE a.id IS NULL AND v.id = ANY($1)
		 ORDER BY v.collected_at ASC`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find unanalyzed videos: %w", err)
	}
	defer rows.Close()
	return collectVideos(rows)
}

const qualifiedVideoColumns = `v.id, v.external_id, v.url, v.author_username, v.description,
	v.views_count, v.likes_count, v.shares_count, v.comments_count,
	v.hashtags, v.search_keyword, COALESCE(v.screenshot_ref, ''), v.collected_at`

func collectVideos(rows pgx.Rows) ([]types.Video, error) {
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

// SentimentCount is one bucket of the sentiment distribution.
type SentimentCount struct {
	Sentiment types.SentimentLabel `json:"sentiment"`
	Count     int                  `json:"count"`
	AvgScore  float64              `json:"avg_score"`
}

// SentimentCounts aggregates analyzed videos by sentiment label.
func (db *DB) SentimentCounts(ctx context.Context) ([]SentimentCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT sentiment, COUNT(*), AVG(sentiment_score)
		 FROM sentiment_analysis
		 GROUP BY sentiment
		 ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sentiment: %w", err)
	}
	defer rows.Close()

	var counts []SentimentCount
	for rows.Next() {
		var c SentimentCount
		if err := rows.Scan(&c.Sentiment, &c.Count, &c.AvgScore); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// KeywordCount is one bucket of the keyword aggregate.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Videos  int    `json:"videos"`
}

// TopKeywords returns discovery keywords ranked by number of collected videos.
func (db *DB) TopKeywords(ctx context.Context, limit int) ([]KeywordCount, error) {
	if limit == 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT search_keyword, COUNT(*)
		 FROM videos
		 WHERE search_keyword <> ''
		 GROUP BY search_keyword
		 ORDER BY COUNT(*) DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate keywords: %w", err)
	}
	defer rows.Close()

	var counts []KeywordCount
	for rows.Next() {
		var c KeywordCount
		if err := rows.Scan(&c.Keyword, &c.Videos); err != nil {
			return nil, fmt.Errorf("failed to scan keyword count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
