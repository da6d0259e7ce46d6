package types

import (
	"time"

	"github.com/google/uuid"
)

// SentimentLabel is the categorical sentiment of a video's discussion.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentMixed    SentimentLabel = "mixed"
)

// Valid reports whether l is one of the known sentiment labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed:
		return true
	}
	return false
}

// Score bounds for the stored sentiment scale.
const (
	MinSentimentScore = 1
	MaxSentimentScore = 10
)

// ScoreConsistent reports whether a sentiment score is consistent with its label.
// The stored scale is 1-10:
//
//	positive: 7-10
//	negative: 1-4
//	neutral:  5-6
//	mixed:    4-7
//
// Any normalization to a 0-1 display scale is a presentation concern and is
// never stored.
func ScoreConsistent(label SentimentLabel, score int) bool {
	if score < MinSentimentScore || score > MaxSentimentScore {
		return false
	}
	switch label {
	case SentimentPositive:
		return score >= 7
	case SentimentNegative:
		return score <= 4
	case SentimentNeutral:
		return score == 5 || score == 6
	case SentimentMixed:
		return score >= 4 && score <= 7
	}
	return false
}

// KeyIssue is one discussion point surfaced by the analysis, with verbatim
// quotes from comments as supporting evidence.
type KeyIssue struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// SentimentAnalysis is the AI-derived record attached to a video.
// At most one analysis exists per video; the record is immutable after
// creation (re-analysis replaces the whole record).
type SentimentAnalysis struct {
	ID         uuid.UUID      `json:"id"`
	VideoID    uuid.UUID      `json:"video_id"`
	Sentiment  SentimentLabel `json:"sentiment"`
	Score      int            `json:"sentiment_score"`
	Topic      string         `json:"topic"`
	KeyIssues  []KeyIssue     `json:"key_issues"`
	Summary    string         `json:"summary"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}
