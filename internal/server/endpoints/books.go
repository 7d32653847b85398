package endpoints

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/ingest"
	"github.com/pressbound/bindery/internal/jobs"
)

// IngestRequest is the body for POST /api/books. Source paths must be
// visible to the server process.
type IngestRequest struct {
	SourcePaths []string `json:"source_paths"`
	Title       string   `json:"title,omitempty"`
	Author      string   `json:"author,omitempty"`
	JobType     string   `json:"job_type,omitempty"`
}

// IngestEndpoint handles POST /api/books.
type IngestEndpoint struct {
	Home   *home.Dir
	Queue  *jobs.Queue
	Logger *slog.Logger
}

func (e *IngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books", e.handler
}

func (e *IngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.SourcePaths) == 0 {
		writeError(w, http.StatusBadRequest, "source_paths is required")
		return
	}

	res, err := ingest.Ingest(r.Context(), e.Home, e.Queue, ingest.Request{
		SourcePaths: req.SourcePaths,
		Title:       req.Title,
		Author:      req.Author,
		JobType:     req.JobType,
		Logger:      e.Logger,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// GetBookResponse combines the book's metadata with the latest result
// per stage.
type GetBookResponse struct {
	*ingest.Metadata
	Stages map[string]*jobs.StageResult `json:"stages,omitempty"`
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct {
	Home  *home.Dir
	Store jobs.Store
}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	meta, err := ingest.ReadMetadata(e.Home, bookID)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Latest stage result across all job types of this book.
	combined := make(map[string]*jobs.StageResult)
	for _, jobType := range jobs.KnownJobTypes {
		latest, err := e.Store.LatestStageResults(r.Context(), bookID, jobType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for stage, result := range latest {
			if prev, ok := combined[stage]; !ok || result.StartedAt.After(prev.StartedAt) {
				combined[stage] = result
			}
		}
	}

	writeJSON(w, http.StatusOK, GetBookResponse{Metadata: meta, Stages: combined})
}

// ArtifactEndpoint handles GET /api/books/{id}/artifacts/{stage}/{name}.
// Artifacts are only served once the stage's latest result succeeded;
// partial output from a failed attempt is never exposed.
type ArtifactEndpoint struct {
	Store     jobs.Store
	Artifacts artifacts.Store
}

func (e *ArtifactEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/artifacts/{stage}/{name}", e.handler
}

func (e *ArtifactEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	stage := r.PathValue("stage")
	name := r.PathValue("name")

	succeeded, err := e.stageSucceeded(r, bookID, stage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !succeeded {
		writeError(w, http.StatusConflict, "stage has not completed successfully")
		return
	}

	payload, err := e.Artifacts.Read(r.Context(), artifacts.NewKey(bookID, stage, name))
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (e *ArtifactEndpoint) stageSucceeded(r *http.Request, bookID, stage string) (bool, error) {
	for _, jobType := range jobs.KnownJobTypes {
		latest, err := e.Store.LatestStageResults(r.Context(), bookID, jobType)
		if err != nil {
			return false, err
		}
		if result, ok := latest[stage]; ok && result.Status == jobs.StageSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".opus":
		return "audio/opus"
	default:
		return "application/json"
	}
}
