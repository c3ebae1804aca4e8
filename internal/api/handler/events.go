package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamelobby-go/internal/api/sse"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// EventsHandler streams room events to browsers over SSE
type EventsHandler struct {
	hubManager *sse.HubManager
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hubManager *sse.HubManager) *EventsHandler {
	return &EventsHandler{hubManager: hubManager}
}

// Stream handles GET /api/v1/rooms/{room_id}/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["room_id"])
	if !roomID.Valid() {
		WriteError(w, NewInvalidRequestError("room id must be 6 digits"))
		return
	}

	watcher := r.URL.Query().Get("watcher")
	if watcher == "" {
		watcher = r.RemoteAddr
	}
	sse.ServeSSE(w, r, h.hubManager.GetOrCreateHub(roomID), watcher)
}
