package types

import (
	"time"

	"github.com/google/uuid"
)

// JobType distinguishes scheduler-triggered runs from manual API runs.
type JobType string

const (
	JobTypeScheduled JobType = "scheduled"
	JobTypeManual    JobType = "manual"
)

// JobStatus is the lifecycle state of a collection job.
type JobStatus string

const (
	JobPending             JobStatus = "pending"
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are never
// reopened; the next run creates a new job.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		return true
	}
	return false
}

// Job represents one orchestrated collection(+analysis) run. Jobs are
// persisted for audit and status polling and are never deleted.
type Job struct {
	ID                uuid.UUID `json:"id"`
	Type              JobType   `json:"job_type"`
	Status            JobStatus `json:"status"`
	Keywords          []string  `json:"keywords"`
	MaxPerKeyword     int       `json:"max_per_keyword"`
	Analyze           bool      `json:"analyze"`
	VideosCollected   int       `json:"videos_collected"`
	CommentsCollected int       `json:"comments_collected"`
	VideosAnalyzed    int       `json:"videos_analyzed"`
	VideosFailed      int       `json:"videos_failed"`
	Error             string    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
