package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/jobs"
	"github.com/dvloznov/bookkeeper/internal/logger"
)

// RunsHandler enqueues categorization runs.
type RunsHandler struct {
	publisher jobs.Publisher
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher) *RunsHandler {
	return &RunsHandler{publisher: publisher}
}

// RunRequest is the body of POST /api/runs.
type RunRequest struct {
	ExportPath      string `json:"export_path"`
	ChartPath       string `json:"chart_path"`
	ResumeSessionID string `json:"resume_session_id,omitempty"`
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ExportPath == "" || req.ChartPath == "" {
		middleware.WriteError(w, http.StatusBadRequest, "export_path and chart_path are required")
		return
	}

	ctx := r.Context()
	job := &jobs.CategorizeRunJob{
		ExportPath:      req.ExportPath,
		ChartPath:       req.ChartPath,
		ResumeSessionID: req.ResumeSessionID,
	}
	if err := h.publisher.PublishCategorizeRun(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to enqueue categorize run")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue categorize run")
		return
	}

	log := logger.FromContext(ctx)
	log.Info().Str("job_id", job.JobID).Str("export", req.ExportPath).Msg("Categorize run enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		SessionID: query.Get("session_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
