package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/transcription-orchestrator/internal/jobs"
)

// handleJobStream sends the current state and then every committed state as
// server-sent events. A slow client skips intermediate states but never
// sees them out of order.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	latest := make(chan jobs.State, 1)
	initial, unsubscribe := s.store.Subscribe(func(st jobs.State) {
		// Replace any state the writer has not picked up yet.
		select {
		case <-latest:
		default:
		}
		latest <- st
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(st jobs.State) bool {
		payload, err := json.Marshal(newStateResponse(st))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", st.Version, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(initial) {
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	lastVersion := initial.Version
	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-latest:
			if st.Version <= lastVersion {
				continue
			}
			lastVersion = st.Version
			if !send(st) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
