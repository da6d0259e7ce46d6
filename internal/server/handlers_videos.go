package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/tokwatch/internal/store"
	"github.com/jonathan/tokwatch/internal/types"
)

// bulkInsertRequest carries videos collected out of process, e.g. by a
// managed-actor pipeline pushing its dataset in.
type bulkInsertRequest struct {
	Videos []bulkVideo `json:"videos" validate:"required,min=1,dive"`
}

type bulkVideo struct {
	ExternalID    string   `json:"external_id" validate:"required"`
	URL           string   `json:"url" validate:"required,url"`
	Author        string   `json:"author_username"`
	Description   string   `json:"description"`
	Views         int64    `json:"views_count" validate:"gte=0"`
	Likes         int64    `json:"likes_count" validate:"gte=0"`
	Shares        int64    `json:"shares_count" validate:"gte=0"`
	CommentCount  int64    `json:"comments_count" validate:"gte=0"`
	Hashtags      []string `json:"hashtags"`
	SearchKeyword string   `json:"search_keyword"`
}

func (s *Server) handleBulkInsert(w http.ResponseWriter, r *http.Request) {
	var req bulkInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &ErrValidation{Message: "invalid JSON body"})
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}

	videos := make([]types.Video, 0, len(req.Videos))
	for _, v := range req.Videos {
		videos = append(videos, types.Video{
			ExternalID:    v.ExternalID,
			URL:           v.URL,
			Author:        v.Author,
			Description:   v.Description,
			Views:         v.Views,
			Likes:         v.Likes,
			Shares:        v.Shares,
			CommentCount:  v.CommentCount,
			Hashtags:      v.Hashtags,
			SearchKeyword: v.SearchKeyword,
		})
	}

	inserted, skipped, err := s.store.BulkInsertVideos(r.Context(), videos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"inserted": inserted,
		"skipped":  skipped,
	})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}

	videos, err := s.store.RecentVideos(r.Context(), store.VideoFilters{
		Keyword: r.URL.Query().Get("keyword"),
		Days:    days,
		Limit:   limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(videos),
		"videos": videos,
	})
}

// videoDetail is the complete read view of one video.
type videoDetail struct {
	*types.Video
	Comments []types.Comment          `json:"comments"`
	Analysis *types.SentimentAnalysis `json:"analysis,omitempty"`
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, &ErrValidation{Message: "invalid video ID"})
		return
	}

	video, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	comments, err := s.store.VideoComments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := videoDetail{Video: video, Comments: comments}
	analysis, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, err)
		return
	}
	detail.Analysis = analysis
	if comments == nil {
		detail.Comments = []types.Comment{}
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSentimentOverview(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.SentimentCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"breakdown": counts,
	})
}

func (s *Server) handleTopKeywords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}

	keywords, err := s.store.TopKeywords(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(keywords),
		"keywords": keywords,
	})
}
