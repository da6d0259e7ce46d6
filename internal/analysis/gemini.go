package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/jonathan/tokwatch/internal/llm"
	"github.com/jonathan/tokwatch/internal/prompts"
	"github.com/jonathan/tokwatch/internal/schemas"
	"github.com/jonathan/tokwatch/internal/types"
)

// Analyzer wraps one call to the external reasoning service per video.
type Analyzer interface {
	Analyze(ctx context.Context, video *types.Video, comments []types.Comment) (*types.SentimentAnalysis, error)
}

// GeminiAnalyzer implements Analyzer on top of the llm client. The raw model
// output is validated against the analysis response schema and the
// score/label consistency mapping before anything is returned; violations
// surface as *MalformedResponseError so the dispatcher can retry.
type GeminiAnalyzer struct {
	client llm.Client
}

// NewGeminiAnalyzer creates an analyzer backed by the given LLM client.
func NewGeminiAnalyzer(client llm.Client) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client}
}

// analysisResponse is the strict response contract with the model.
type analysisResponse struct {
	Sentiment string           `json:"sentiment"`
	Score     int              `json:"sentiment_score"`
	Topic     string           `json:"topic"`
	Summary   string           `json:"summary"`
	KeyIssues []types.KeyIssue `json:"key_issues"`
}

// Analyze runs one sentiment analysis request for a video.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, video *types.Video, comments []types.Comment) (*types.SentimentAnalysis, error) {
	prompt := buildPrompt(video, comments)

	raw, err := a.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	if err := schemas.ValidateAnalysisResponse([]byte(raw)); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, &MalformedResponseError{Reason: "schema violation", Raw: raw, Cause: ve}
		}
		return nil, &MalformedResponseError{Reason: "unparseable response", Raw: raw, Cause: err}
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &MalformedResponseError{Reason: "invalid JSON", Raw: raw, Cause: err}
	}

	label := types.SentimentLabel(resp.Sentiment)
	if !types.ScoreConsistent(label, resp.Score) {
		return nil, &MalformedResponseError{
			Reason: fmt.Sprintf("score %d inconsistent with label %q", resp.Score, label),
			Raw:    raw,
		}
	}

	return &types.SentimentAnalysis{
		VideoID:   video.ID,
		Sentiment: label,
		Score:     resp.Score,
		Topic:     resp.Topic,
		KeyIssues: resp.KeyIssues,
		Summary:   resp.Summary,
	}, nil
}

// classifyProviderError maps transport failures onto the analysis error
// taxonomy.
func classifyProviderError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return err
	}
	// Network-level failures are transient from our point of view.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// buildPrompt assembles the fixed analysis instruction with the video's
// description, hashtags and viewer comments as context.
func buildPrompt(video *types.Video, comments []types.Comment) string {
	var sb strings.Builder

	sb.WriteString(prompts.MustGet("analysis.json", "preamble"))
	sb.WriteString("\n\n")
	sb.WriteString("Video description: ")
	if video.Description != "" {
		sb.WriteString(video.Description)
	} else {
		sb.WriteString("(none)")
	}
	sb.WriteString("\nHashtags: ")
	if len(video.Hashtags) > 0 {
		sb.WriteString(strings.Join(video.Hashtags, ", "))
	} else {
		sb.WriteString("(none)")
	}
	sb.WriteString("\nViewer comments:\n")
	if len(comments) == 0 {
		sb.WriteString("(no comments available)\n")
	}
	for _, c := range comments {
		sb.WriteString("- ")
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(prompts.MustGet("analysis.json", "instructions"))
	sb.WriteString("\n")

	return sb.String()
}
