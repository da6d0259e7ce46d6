package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/tokwatch/internal/types"
)

// CreateJob persists a new job in pending state.
func (db *DB) CreateJob(ctx context.Context, job *types.Job) error {
	keywords, err := json.Marshal(job.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_type, status, keywords, max_per_keyword, analyze)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Type, job.Status, keywords, job.MaxPerKeyword, job.Analyze,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// MarkJobRunning transitions a pending job to running and stamps its start time.
func (db *DB) MarkJobRunning(ctx context.Context, jobID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, started_at = NOW() WHERE id = $2`,
		types.JobRunning, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// AddJobCounts increments the running counters of a job.
func (db *DB) AddJobCounts(ctx context.Context, jobID uuid.UUID, videos, comments, failed int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs
		 SET videos_collected = videos_collected + $1,
		     comments_collected = comments_collected + $2,
		     videos_failed = videos_failed + $3
		 WHERE id = $4`,
		videos, comments, failed, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return nil
}

// AddJobAnalyzed increments the analyzed-videos counter of a job.
func (db *DB) AddJobAnalyzed(ctx context.Context, jobID uuid.UUID, analyzed int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs SET videos_analyzed = videos_analyzed + $1 WHERE id = $2`,
		analyzed, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update analyzed counter: %w", err)
	}
	return nil
}

// FinishJob transitions a job to a terminal status, retaining the first
// fatal error message if one occurred. Terminal jobs are never reopened.
func (db *DB) FinishJob(ctx context.Context, jobID uuid.UUID, status types.JobStatus, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finish job with non-terminal status %q", status)
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, completed_at = NOW() WHERE id = $3`,
		status, errMsg, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

const jobColumns = `id, job_type, status, keywords, max_per_keyword, analyze,
	videos_collected, comments_collected, videos_analyzed, videos_failed,
	error, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	var keywords []byte
	err := row.Scan(&j.ID, &j.Type, &j.Status, &keywords, &j.MaxPerKeyword, &j.Analyze,
		&j.VideosCollected, &j.CommentsCollected, &j.VideosAnalyzed, &j.VideosFailed,
		&j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keywords, &j.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// GetJob retrieves a job by ID, or ErrNotFound.
func (db *DB) GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListJobs retrieves recent jobs, newest first.
func (db *DB) ListJobs(ctx context.Context, limit int) ([]types.Job, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
