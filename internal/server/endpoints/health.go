package endpoints

import (
	"net/http"

	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/providers"
	"github.com/pressbound/bindery/version"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.GitRelease})
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Providers ProvidersStatus `json:"providers"`
	Jobs      *jobs.Stats     `json:"jobs,omitempty"`
}

// ProvidersStatus shows registered text and speech providers.
type ProvidersStatus struct {
	Text   []string `json:"text"`
	Speech []string `json:"speech"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	Queue    *jobs.Queue
	Registry *providers.Registry
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Server: "running"}

	if e.Registry != nil {
		resp.Providers.Text = e.Registry.ListText()
		resp.Providers.Speech = e.Registry.ListSpeech()
	}

	if e.Queue != nil {
		stats, err := e.Queue.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Jobs = stats
	}

	writeJSON(w, http.StatusOK, resp)
}
