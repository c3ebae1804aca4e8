package sse

import (
	"log/slog"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// SSE event names
const (
	EventRoom = "room"
	EventGame = "game"
)

// Broadcaster publishes room notifications and game frames to the hubs of
// watched rooms. Rooms nobody watches are skipped.
type Broadcaster struct {
	hubManager *HubManager
	logger     *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubManager *HubManager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubManager: hubManager,
		logger:     logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// PublishRoomEvent sends a room notification to the room's watchers
func (b *Broadcaster) PublishRoomEvent(event model.RoomEvent) {
	hub := b.hubManager.GetHub(event.RoomID)
	if hub == nil {
		return
	}
	data, err := wire.Marshal(event)
	if err != nil {
		b.logger.Error("sse failed to encode room event",
			slog.String("room_id", string(event.RoomID)),
			slog.Any("error", err))
		return
	}
	hub.BroadcastEvent(EventRoom, string(data))
}

// PublishGameMessage sends one frame the room's instance broadcast
func (b *Broadcaster) PublishGameMessage(roomID model.RoomID, msg wire.GameMessage) {
	hub := b.hubManager.GetHub(roomID)
	if hub == nil {
		return
	}
	data, err := wire.Marshal(msg)
	if err != nil {
		b.logger.Error("sse failed to encode game message",
			slog.String("room_id", string(roomID)),
			slog.Any("error", err))
		return
	}
	hub.BroadcastEvent(EventGame, string(data))
}
