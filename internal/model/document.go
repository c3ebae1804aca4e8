package model

import "time"

// Document is the persisted presence and room state of the database tier.
// Credentials, artifacts and reviews are stored as their own records.
type Document struct {
	Rooms              []Room    `json:"rooms"`
	OnlineUsers        []Session `json:"online_users"`
	GameDevOnlineUsers []Session `json:"game_dev_online_users"`
	GameDevRooms       []Room    `json:"game_dev_rooms"`
	History            []Room    `json:"history"`
	SavedAt            time.Time `json:"saved_at"`
}

// StatusReport is the SHOW_STATUS payload
type StatusReport struct {
	Rooms       []Room    `json:"rooms"`
	OnlineUsers []Session `json:"online_users"`
	History     []Room    `json:"history"`
}
