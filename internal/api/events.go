package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/audiocast/internal/events"
	"github.com/snarg/audiocast/internal/pipeline"
)

// EventSource is satisfied by *events.Bus.
type EventSource interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
	ReplaySince(lastEventID string, filter events.Filter) []events.Event
}

type EventsHandler struct {
	source    EventSource
	runs      RunController
	keepalive time.Duration
}

func NewEventsHandler(source EventSource, runs RunController) *EventsHandler {
	return &EventsHandler{source: source, runs: runs, keepalive: 15 * time.Second}
}

// StreamRunEvents opens an SSE connection for one run. Clients resume with
// Last-Event-ID; the stream ends after the run's complete or failed event.
func (h *EventsHandler) StreamRunEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	runID := chi.URLParam(r, "id")
	userID := UserID(r.Context())
	if _, err := h.runs.Get(runID, userID); err != nil {
		writeRunError(w, r, err)
		return
	}

	filter := events.Filter{UserID: userID, RunID: runID}
	if v, ok := QueryString(r, "types"); ok {
		filter.Types = strings.Split(v, ",")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := h.source.Subscribe(filter)
	defer cancel()

	seen := make(map[string]bool)
	for _, e := range h.source.ReplaySince(r.Header.Get("Last-Event-ID"), filter) {
		writeEvent(w, e)
		seen[e.ID] = true
		if terminal(e) {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Debug().Str("run_id", runID).Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("run_id", runID).Msg("SSE client disconnected")
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if seen[e.ID] {
				continue
			}
			writeEvent(w, e)
			flusher.Flush()
			if terminal(e) {
				return
			}
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

func terminal(e events.Event) bool {
	return e.Type == pipeline.EventComplete || e.Type == pipeline.EventFailed
}
