// Package tetris is the deterministic rules engine run by game instances.
package tetris

// Action is a player input
type Action string

const (
	ActionLeft     Action = "LEFT"
	ActionRight    Action = "RIGHT"
	ActionSoftDrop Action = "SOFT_DROP"
	ActionHardDrop Action = "HARD_DROP"
	ActionCW       Action = "CW"
	ActionCCW      Action = "CCW"
	ActionHold     Action = "HOLD"
)

const (
	// PreviewSize is the number of upcoming shapes shown to the player
	PreviewSize = 3

	// LinePoints is awarded per cleared row
	LinePoints = 100
	// HardDropPoints is awarded per row fallen during a hard drop
	HardDropPoints = 2

	spawnX = 3
	spawnY = 0
)

// State is a self-contained view of a player's game
type State struct {
	Board    Board
	Active   *Piece
	Hold     Shape
	Next     []Shape
	Score    int
	Lines    int
	GameOver bool
}

// Player is one player's authoritative game. It is not safe for
// concurrent use; the owning instance serialises access.
type Player struct {
	board    Board
	active   Piece
	hold     Shape
	holdUsed bool
	queue    []Shape
	rand     *Randomizer
	score    int
	lines    int
	over     bool
	lastSeq  int64
}

// NewPlayer starts a game dealing from seed under rule
func NewPlayer(seed int64, rule BagRule) *Player {
	p := &Player{rand: NewRandomizer(seed, rule)}
	for len(p.queue) < PreviewSize {
		p.queue = append(p.queue, p.rand.Next())
	}
	p.spawn(p.draw())
	return p
}

// Accept reports whether an input numbered seq is new. Duplicate and
// out-of-order sequence numbers are rejected.
func (p *Player) Accept(seq int64) bool {
	if seq <= p.lastSeq {
		return false
	}
	p.lastSeq = seq
	return true
}

// LastSeq returns the last accepted input sequence number
func (p *Player) LastSeq() int64 {
	return p.lastSeq
}

// Apply performs action and reports whether the state changed
func (p *Player) Apply(action Action) bool {
	if p.over {
		return false
	}
	switch action {
	case ActionLeft:
		return p.move(-1, 0)
	case ActionRight:
		return p.move(1, 0)
	case ActionSoftDrop:
		return p.softDrop()
	case ActionHardDrop:
		return p.hardDrop()
	case ActionCW:
		return p.rotate(1)
	case ActionCCW:
		return p.rotate(-1)
	case ActionHold:
		return p.holdPiece()
	default:
		return false
	}
}

// Tick applies one step of gravity
func (p *Player) Tick() bool {
	return p.Apply(ActionSoftDrop)
}

// GameOver reports whether the player has topped out
func (p *Player) GameOver() bool {
	return p.over
}

// Score returns the current score
func (p *Player) Score() int {
	return p.score
}

// Lines returns the number of cleared rows
func (p *Player) Lines() int {
	return p.lines
}

// State returns a copy of the player's game state
func (p *Player) State() State {
	active := p.active
	return State{
		Board:    p.board,
		Active:   &active,
		Hold:     p.hold,
		Next:     append([]Shape(nil), p.queue...),
		Score:    p.score,
		Lines:    p.lines,
		GameOver: p.over,
	}
}

func (p *Player) move(dx, dy int) bool {
	moved := p.active.moved(dx, dy)
	if !p.board.fits(moved) {
		return false
	}
	p.active = moved
	return true
}

func (p *Player) rotate(dir int) bool {
	turned := p.active.rotated(dir)
	for _, k := range kicks {
		candidate := turned.moved(k.X, k.Y)
		if p.board.fits(candidate) {
			p.active = candidate
			return true
		}
	}
	return false
}

func (p *Player) softDrop() bool {
	if !p.move(0, 1) {
		p.lockActive()
	}
	return true
}

func (p *Player) hardDrop() bool {
	rows := 0
	for p.move(0, 1) {
		rows++
	}
	p.score += HardDropPoints * rows
	p.lockActive()
	return true
}

func (p *Player) holdPiece() bool {
	if p.holdUsed {
		return false
	}
	current := p.active.Shape
	if p.hold == "" {
		p.hold = current
		p.spawn(p.draw())
	} else {
		next := p.hold
		p.hold = current
		p.spawn(next)
	}
	p.holdUsed = true
	return true
}

func (p *Player) lockActive() {
	p.board.lock(p.active)
	if cleared := p.board.clearLines(); cleared > 0 {
		p.lines += cleared
		p.score += cleared * LinePoints
	}
	p.holdUsed = false
	p.spawn(p.draw())
}

func (p *Player) draw() Shape {
	s := p.queue[0]
	p.queue = append(p.queue[1:], p.rand.Next())
	return s
}

// spawn places shape at the spawn point. A blocked spawn tops the player out.
func (p *Player) spawn(shape Shape) {
	p.active = Piece{Shape: shape, Rotation: 0, X: spawnX, Y: spawnY}
	if !p.board.fits(p.active) {
		p.over = true
	}
}
