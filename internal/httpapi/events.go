package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lavacaster/broadcaster/internal/eventbus"
)

// EventsHandler bridges the Event Bus (§4.7) onto a raw SSE endpoint.
// Huma has no native streaming support, so this is registered directly
// on the chi router, the way the teacher's ProgressHandler splits a
// typed Register(api) from a RegisterSSE(router) (tvarr
// internal/http/handlers/progress.go).
type EventsHandler struct {
	bus               *eventbus.Bus
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// NewEventsHandler builds an EventsHandler bound to bus.
func NewEventsHandler(bus *eventbus.Bus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger, heartbeatInterval: 30 * time.Second}
}

// RegisterSSE mounts the events stream on router at /api/events.
func (h *EventsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/events", h.handleSSE)
}

// handleSSE streams every lifecycle event (§4.7 table) to the connected
// client as it is published, until the client disconnects.
func (h *EventsHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe()
	defer sub.Unsubscribe()

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to marshal event for SSE", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
