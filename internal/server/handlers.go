package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/tokwatch/internal/jobs"
	"github.com/jonathan/tokwatch/internal/types"
)

var validate = validator.New()

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startJobRequest is the StartJob trigger payload.
type startJobRequest struct {
	Keywords      []string `json:"keywords" validate:"required,min=1,dive,min=1"`
	MaxPerKeyword int      `json:"max_per_keyword" validate:"gte=0,lte=100"`
	Analyze       bool     `json:"analyze"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &ErrValidation{Message: "invalid JSON body"})
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}

	job, err := s.runner.Start(r.Context(), jobs.StartParams{
		Keywords:      req.Keywords,
		MaxPerKeyword: req.MaxPerKeyword,
		Analyze:       req.Analyze,
		Type:          types.JobTypeManual,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, &ErrValidation{Message: "invalid job ID"})
		return
	}

	job, err := s.runner.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, &ErrValidation{Message: err.Error()})
		return
	}

	jobList, err := s.runner.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(jobList),
		"jobs":  jobList,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, &ErrValidation{Message: "invalid job ID"})
		return
	}

	if err := s.runner.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

// triggerAnalysisRequest optionally narrows the batch to specific videos.
type triggerAnalysisRequest struct {
	Limit    int         `json:"limit" validate:"gte=0,lte=1000"`
	VideoIDs []uuid.UUID `json:"video_ids"`
}

func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analysis is not configured"})
		return
	}

	req := triggerAnalysisRequest{Limit: s.batchSize}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, &ErrValidation{Message: "invalid JSON body"})
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, &ErrValidation{Message: err.Error()})
			return
		}
	}
	if req.Limit == 0 {
		req.Limit = s.batchSize
	}

	var err error
	var result any
	if len(req.VideoIDs) > 0 {
		result, err = s.dispatcher.RunForVideos(r.Context(), req.VideoIDs)
	} else {
		result, err = s.dispatcher.RunBatch(r.Context(), req.Limit)
	}
	if err != nil {
		// Partial progress is still reported alongside the failure.
		writeJSON(w, http.StatusOK, map[string]any{
			"result": result,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// queryInt parses a non-negative integer query parameter. A missing
// parameter yields the fallback; a malformed one is a validation error, the
// same on every list endpoint.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return n, nil
}
