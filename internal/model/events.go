package model

import "time"

// EventType identifies a notification pushed to a user who did not issue
// the command that caused it
type EventType string

const (
	// Room events
	EventPlayerJoined   EventType = "PLAYER_JOINED"
	EventPlayerLeft     EventType = "PLAYER_LEFT"
	EventHostChanged    EventType = "HOST_TRANSFERRED"
	EventRoomClosed     EventType = "ROOM_CLOSED"
	EventGameStarted    EventType = "GAME_STARTED"
	EventGameFinished   EventType = "GAME_FINISHED"
	EventGameAborted    EventType = "GAME_ABORTED"
	EventInviteAccepted EventType = "INVITE_ACCEPTED"
	EventInviteDeclined EventType = "INVITE_DECLINED"
	EventInviteReceived EventType = "INVITE"
)

// RoomEvent is the payload of a room notification
type RoomEvent struct {
	Type      EventType    `json:"type"`
	RoomID    RoomID       `json:"room_id"`
	Username  string       `json:"username,omitempty"`
	Room      *Room        `json:"room,omitempty"`
	Results   *GameResults `json:"results,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
