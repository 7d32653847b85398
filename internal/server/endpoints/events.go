package endpoints

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressbound/bindery/internal/pipeline"
)

// EventsEndpoint handles GET /api/events: a server-sent event stream of
// pipeline progress updates. Optional ?job_id= narrows the stream to
// one job.
type EventsEndpoint struct {
	Progress *pipeline.Broadcaster
	Logger   *slog.Logger
}

func (e *EventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/events", e.handler
}

func (e *EventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	jobFilter := r.URL.Query().Get("job_id")

	updates, unsubscribe := e.Progress.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if jobFilter != "" && update.JobID != jobFilter {
				continue
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
