package model

import "time"

// SessionStatus is a user's presence state
type SessionStatus string

const (
	StatusIdle   SessionStatus = "idle"
	StatusInRoom SessionStatus = "in_room"
	StatusInGame SessionStatus = "in_game"
)

// Invite is a pending request from a room host to an idle player
type Invite struct {
	Inviter   string    `json:"inviter"`
	Invitee   string    `json:"invitee"`
	RoomID    RoomID    `json:"room_id"`
	GameKind  string    `json:"game_kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the invite came from inviter for roomID
func (i Invite) Matches(inviter string, roomID RoomID) bool {
	return i.Inviter == inviter && i.RoomID == roomID
}

// Session is the presence record of an online user
type Session struct {
	Username       string        `json:"username"`
	Realm          Realm         `json:"realm"`
	Address        string        `json:"address"`
	Status         SessionStatus `json:"status"`
	PendingInvites []Invite      `json:"pending_invites"`
	LoggedInAt     time.Time     `json:"logged_in_at"`
}

// Clone returns a deep copy of the session
func (s *Session) Clone() Session {
	c := *s
	c.PendingInvites = append([]Invite(nil), s.PendingInvites...)
	return c
}
