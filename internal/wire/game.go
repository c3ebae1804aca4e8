package wire

// Game protocol message types
const (
	GameJoin     = "JOIN"
	GameWatch    = "WATCH"
	GameWelcome  = "WELCOME"
	GameReady    = "READY"
	GameInput    = "INPUT"
	GameSnapshot = "SNAPSHOT"
	GameStart    = "GAME_START"
	GameTempo    = "TEMPO"
	GameOver     = "GAME_OVER"
	GameError    = "ERROR"
)

// Roles assigned in WELCOME
const (
	RolePlayer  = "player"
	RoleWatcher = "watcher"
)

// GravityPlan is the tick schedule announced in WELCOME
type GravityPlan struct {
	DropMs int `json:"dropMs"`
}

// ActivePiece is the falling piece in a snapshot
type ActivePiece struct {
	Shape    string `json:"shape"`
	Rotation int    `json:"rotation"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// FinalScore is one entry of GAME_OVER.finalScores
type FinalScore struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Lines    int    `json:"lines"`
}

// GameMessage is one frame of the game instance protocol. Only the fields
// relevant to Type are set.
type GameMessage struct {
	Type string `json:"type"`

	// JOIN / WATCH
	Username string `json:"username,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	Ticket   string `json:"ticket,omitempty"`

	// WELCOME
	Role        string       `json:"role,omitempty"`
	Seed        int64        `json:"seed,omitempty"`
	BagRule     string       `json:"bagRule,omitempty"`
	GravityPlan *GravityPlan `json:"gravityPlan,omitempty"`

	// INPUT
	Seq    int64  `json:"seq,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
	Action string `json:"action,omitempty"`

	// SNAPSHOT
	Board    [][]int      `json:"board,omitempty"`
	BoardRLE string       `json:"boardRLE,omitempty"`
	Active   *ActivePiece `json:"active,omitempty"`
	Hold     string       `json:"hold,omitempty"`
	Next     []string     `json:"next,omitempty"`
	Score    *int         `json:"score,omitempty"`
	Lines    *int         `json:"lines,omitempty"`
	GameOver bool         `json:"gameOver,omitempty"`

	// GAME_START
	Players []string `json:"players,omitempty"`

	// TEMPO
	DropMs int `json:"dropMs,omitempty"`

	// GAME_OVER
	Winner      string       `json:"winner,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	FinalScores []FinalScore `json:"finalScores,omitempty"`

	// ERROR
	Message string `json:"message,omitempty"`
}

// IntPtr returns a pointer to n for optional snapshot counters
func IntPtr(n int) *int {
	return &n
}
