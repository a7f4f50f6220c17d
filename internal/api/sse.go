package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"titan/internal/logging"
)

// handleEvents streams the conversation's progress events as SSE until the
// client disconnects. Consumers must tolerate gaps: the emitter drops
// events for slow subscribers rather than stalling the turn.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.service.Emitter().Subscribe(conversationID)
	defer cancel()

	logging.API("SSE stream opened: conversation=%s", conversationID)

	for {
		select {
		case <-r.Context().Done():
			logging.API("SSE stream closed: conversation=%s", conversationID)
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
