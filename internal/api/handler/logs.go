package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hszk-dev/mediagate/internal/events"
)

const heartbeatInterval = 30 * time.Second

// LogsHandler streams the event bus over SSE.
type LogsHandler struct {
	bus *events.Bus
}

func NewLogsHandler(bus *events.Bus) *LogsHandler {
	return &LogsHandler{bus: bus}
}

// Stream handles GET /admin/api/logs/stream: an initial connected event,
// buffered replay, live events, and heartbeats every 30 seconds. A write
// error drops the subscriber.
func (h *LogsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {\"timestamp\":%q}\n\n", time.Now().Format(time.RFC3339Nano))
	flusher.Flush()

	sub := h.bus.Subscribe()
	defer sub.Unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
