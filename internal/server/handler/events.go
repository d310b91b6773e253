package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// EventsHandler replays the durable allocation stream.
type EventsHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus domain.SignalBus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger.With(slog.String("handler", "events"))}
}

// Allocations returns committed-allocation events after the given stream id.
// GET /api/events/allocations?after=<id>&count=<n>
func (h *EventsHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	count := queryInt(r, "count", 100, 1000)

	msgs, err := h.bus.StreamRead(r.Context(), domain.StreamAllocations, after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "read allocation events", err)
		return
	}
	if msgs == nil {
		msgs = []domain.StreamMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": msgs})
}
