package model

import "time"

// RoomID is the 6-digit identifier of a room
type RoomID string

// Valid reports whether id is six decimal digits
func (id RoomID) Valid() bool {
	if len(id) != 6 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// RoomCapacity is the number of players a room seats
const RoomCapacity = 2

// Visibility controls who may join a room without an invite
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// RoomStatus is the lifecycle state of a room
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "Waiting"
	RoomReady    RoomStatus = "Ready"
	RoomInGame   RoomStatus = "In Game"
	RoomFinished RoomStatus = "Finished"
)

// Game end reasons
const (
	ReasonToppedOut = "topped_out"
	ReasonForfeit   = "forfeit"
	ReasonAborted   = "aborted"
	ReasonDeleted   = "game_deleted"
)

// WinnerNone is reported when a game ends without a winner
const WinnerNone = "none"

// PlayerScore is one player's final tally
type PlayerScore struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Lines    int    `json:"lines"`
}

// GameResults records how a game in a room ended
type GameResults struct {
	Winner     string        `json:"winner"`
	Reason     string        `json:"reason"`
	Scores     []PlayerScore `json:"scores,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// GameEnding is a verdict the database reached for a running game, to
// be carried into its instance
type GameEnding struct {
	RoomID RoomID `json:"room_id"`
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// Room groups up to two players around one game version.
// Players[0] is the host.
type Room struct {
	ID          RoomID       `json:"room_id"`
	Creator     string       `json:"creator"`
	Players     []string     `json:"players"`
	Visibility  Visibility   `json:"visibility"`
	Status      RoomStatus   `json:"status"`
	GameKind    string       `json:"game_kind"`
	GameVersion string       `json:"game_version"`
	Results     *GameResults `json:"results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Host returns the current host, or "" for an empty room
func (r *Room) Host() string {
	if len(r.Players) == 0 {
		return ""
	}
	return r.Players[0]
}

// Has reports whether username is seated in the room
func (r *Room) Has(username string) bool {
	for _, p := range r.Players {
		if p == username {
			return true
		}
	}
	return false
}

// IsFull reports whether every seat is taken
func (r *Room) IsFull() bool {
	return len(r.Players) >= RoomCapacity
}

// Other returns the seated player that is not username
func (r *Room) Other(username string) string {
	for _, p := range r.Players {
		if p != username {
			return p
		}
	}
	return ""
}

// Clone returns a deep copy of the room
func (r *Room) Clone() Room {
	c := *r
	c.Players = append([]string(nil), r.Players...)
	if r.Results != nil {
		res := *r.Results
		res.Scores = append([]PlayerScore(nil), r.Results.Scores...)
		c.Results = &res
	}
	return c
}

// statusForSeats returns Waiting or Ready for a room that is not playing
func statusForSeats(n int) RoomStatus {
	if n >= RoomCapacity {
		return RoomReady
	}
	return RoomWaiting
}

// RefreshStatus recomputes Waiting/Ready from the seat count
func (r *Room) RefreshStatus() {
	if r.Status == RoomWaiting || r.Status == RoomReady {
		r.Status = statusForSeats(len(r.Players))
	}
}
