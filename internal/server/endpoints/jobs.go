package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pressbound/bindery/internal/jobs"
)

// CreateJobRequest is the body for POST /api/jobs.
type CreateJobRequest struct {
	BookID      string `json:"book_id"`
	JobType     string `json:"job_type"`
	Priority    string `json:"priority,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// CreateJobEndpoint handles POST /api/jobs.
type CreateJobEndpoint struct {
	Queue *jobs.Queue
}

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	priority, err := jobs.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := e.Queue.Enqueue(r.Context(), req.BookID, req.JobType, priority, req.MaxAttempts)
	if err != nil {
		if errors.Is(err, jobs.ErrJobExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// ListJobsResponse wraps the job list.
type ListJobsResponse struct {
	Jobs  []*jobs.Job `json:"jobs"`
	Count int         `json:"count"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct {
	Queue *jobs.Queue
}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	filter := jobs.ListFilter{
		BookID:  r.URL.Query().Get("book_id"),
		JobType: r.URL.Query().Get("job_type"),
		Status:  jobs.Status(r.URL.Query().Get("status")),
	}

	list, err := e.Queue.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: list, Count: len(list)})
}

// JobStatsEndpoint handles GET /api/jobs/stats.
type JobStatsEndpoint struct {
	Queue *jobs.Queue
}

func (e *JobStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/stats", e.handler
}

func (e *JobStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	stats, err := e.Queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetJobResponse includes the job record plus its stage attempt history.
type GetJobResponse struct {
	*jobs.Job
	Stages []*jobs.StageResult `json:"stages,omitempty"`
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct {
	Queue *jobs.Queue
	Store jobs.Store
}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	job, err := e.Queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := e.Store.StageResults(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, GetJobResponse{Job: job, Stages: results})
}

// CancelJobEndpoint handles POST /api/jobs/{id}/cancel.
type CancelJobEndpoint struct {
	Queue *jobs.Queue
}

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/cancel", e.handler
}

func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	if err := e.Queue.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrIllegalTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	job, err := e.Queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}
