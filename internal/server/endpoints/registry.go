// Package endpoints defines the HTTP API. Each endpoint declares its
// route and carries its dependencies explicitly; nothing is resolved
// from the request context.
package endpoints

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/pipeline"
	"github.com/pressbound/bindery/internal/providers"
)

// Endpoint is one HTTP route.
type Endpoint interface {
	// Route returns the method, path pattern, and handler.
	Route() (string, string, http.HandlerFunc)
}

// Deps holds the services endpoints operate on.
type Deps struct {
	Home      *home.Dir
	Queue     *jobs.Queue
	Store     jobs.Store
	Artifacts artifacts.Store
	Registry  *providers.Registry
	Progress  *pipeline.Broadcaster
	Logger    *slog.Logger
}

// All returns all endpoint instances.
func All(deps Deps) []Endpoint {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return []Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{Queue: deps.Queue, Registry: deps.Registry},

		// Job endpoints
		&CreateJobEndpoint{Queue: deps.Queue},
		&ListJobsEndpoint{Queue: deps.Queue},
		&JobStatsEndpoint{Queue: deps.Queue},
		&GetJobEndpoint{Queue: deps.Queue, Store: deps.Store},
		&CancelJobEndpoint{Queue: deps.Queue},

		// Book endpoints
		&IngestEndpoint{Home: deps.Home, Queue: deps.Queue, Logger: deps.Logger},
		&GetBookEndpoint{Home: deps.Home, Store: deps.Store},
		&ArtifactEndpoint{Store: deps.Store, Artifacts: deps.Artifacts},

		// Progress stream
		&EventsEndpoint{Progress: deps.Progress, Logger: deps.Logger},
	}
}

// RegisterAll adds every endpoint's route to the mux.
func RegisterAll(mux *http.ServeMux, eps []Endpoint) {
	for _, ep := range eps {
		method, path, handler := ep.Route()
		mux.HandleFunc(method+" "+path, handler)
	}
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
