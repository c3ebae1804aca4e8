// Package gameserver runs the authoritative per-room game instance.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/gamelobby-go/internal/games"
	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/ticket"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Snapshot encodings
const (
	EncodingRLE  = "rle"
	EncodingGrid = "grid"
)

const eventBuffer = 256

// Config describes one match
type Config struct {
	RoomID      model.RoomID
	Players     []string
	Seed        int64
	Manifest    games.Manifest
	JoinTimeout time.Duration
	Encoding    string
	Tickets     *ticket.Issuer
	// Observer receives every broadcast message
	Observer func(wire.GameMessage)
}

// Result is how a match ended
type Result struct {
	RoomID model.RoomID
	Winner string
	Reason string
	Scores []model.PlayerScore
}

type seat struct {
	username string
	game     *tetris.Player
	peer     *peer
	ready    bool
}

type event struct {
	peer *peer
	msg  wire.GameMessage
	// gone is set when the peer's connection ended
	gone bool
	// verdict ends the match with an outcome decided outside the loop
	verdict *verdict
}

type verdict struct {
	winner string
	reason string
}

// Instance is a per-room actor. All game state is owned by the goroutine
// running Run; peers talk to it through the events channel.
type Instance struct {
	cfg    Config
	logger *slog.Logger
	events chan event
	done   chan struct{}

	seats    []*seat
	peers    map[*peer]struct{}
	started  bool
	ended    bool
	result   Result
	dropMs   int
	ticker   *time.Ticker
	tickerCh <-chan time.Time
}

// New creates an instance for a two-player room
func New(cfg Config, logger *slog.Logger) (*Instance, error) {
	if len(cfg.Players) != model.RoomCapacity {
		return nil, fmt.Errorf("%w: instance needs %d players", model.ErrBadRequest, model.RoomCapacity)
	}
	if cfg.Manifest.Gravity.DropMs <= 0 {
		cfg.Manifest.Gravity.DropMs = 1000
	}
	if !cfg.Manifest.BagRule.Valid() {
		cfg.Manifest.BagRule = tetris.BagRestrictedFirst
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}
	if cfg.Encoding != EncodingGrid {
		cfg.Encoding = EncodingRLE
	}

	in := &Instance{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "instance"), slog.String("room_id", string(cfg.RoomID))),
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		peers:  make(map[*peer]struct{}),
		dropMs: cfg.Manifest.Gravity.DropMs,
	}
	for _, name := range cfg.Players {
		in.seats = append(in.seats, &seat{
			username: name,
			game:     tetris.NewPlayer(cfg.Seed, cfg.Manifest.BagRule),
		})
	}
	return in, nil
}

// RoomID returns the room the instance serves
func (in *Instance) RoomID() model.RoomID {
	return in.cfg.RoomID
}

// Done is closed when Run has returned
func (in *Instance) Done() <-chan struct{} {
	return in.done
}

// Attach hands a new connection to the instance. The first frame on it
// must be JOIN or WATCH.
func (in *Instance) Attach(conn Conn) {
	select {
	case <-in.done:
		_ = conn.Close()
		return
	default:
	}
	p := newPeer(conn)
	go p.writeLoop(in.done)
	go in.readLoop(p)
}

func (in *Instance) readLoop(p *peer) {
	for {
		msg, err := p.conn.Read()
		if err != nil {
			if errors.Is(err, model.ErrOversizeFrame) || errors.Is(err, model.ErrMalformedFrame) {
				in.logger.Debug("discarded frame", slog.String("remote", p.conn.RemoteAddr()), slog.String("error", err.Error()))
				continue
			}
			in.post(event{peer: p, gone: true})
			return
		}
		if !in.post(event{peer: p, msg: msg}) {
			return
		}
	}
}

func (in *Instance) post(ev event) bool {
	select {
	case in.events <- ev:
		return true
	case <-in.done:
		if ev.peer != nil {
			_ = ev.peer.conn.Close()
		}
		return false
	}
}

// End finishes the match with the given winner and reason, as when the
// database has already settled it. It is a no-op once Run has returned.
func (in *Instance) End(winner, reason string) {
	in.post(event{verdict: &verdict{winner: winner, reason: reason}})
}

// Run drives the match until it ends or ctx is cancelled and returns the
// outcome. A panic inside the loop aborts the match.
func (in *Instance) Run(ctx context.Context) (res Result) {
	defer close(in.done)
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("instance panicked", slog.Any("panic", r))
			if !in.ended {
				in.end(model.WinnerNone, model.ReasonAborted)
			}
			res = in.result
		}
		in.shutdown()
	}()

	in.logger.Info("instance started", slog.Int("drop_ms", in.dropMs), slog.String("bag_rule", string(in.cfg.Manifest.BagRule)))

	joinTimer := time.NewTimer(in.cfg.JoinTimeout)
	defer joinTimer.Stop()

	for !in.ended {
		select {
		case <-ctx.Done():
			in.end(model.WinnerNone, model.ReasonAborted)
		case <-joinTimer.C:
			if !in.started {
				in.logger.Warn("players did not join in time")
				in.end(model.WinnerNone, model.ReasonAborted)
			}
		case ev := <-in.events:
			in.handle(ev)
		case <-in.tickerCh:
			in.tick()
		}
	}
	return in.result
}

func (in *Instance) handle(ev event) {
	if ev.verdict != nil {
		in.end(ev.verdict.winner, ev.verdict.reason)
		return
	}
	p := ev.peer
	if ev.gone {
		in.disconnect(p)
		return
	}
	if p.role == "" {
		in.handshake(p, ev.msg)
		return
	}

	switch ev.msg.Type {
	case wire.GameReady:
		if p.seat < 0 {
			return
		}
		in.seats[p.seat].ready = true
		in.maybeStart()
	case wire.GameInput:
		if p.seat < 0 {
			return
		}
		in.input(in.seats[p.seat], ev.msg)
	default:
		in.logger.Debug("ignored message", slog.String("type", ev.msg.Type), slog.String("username", p.username))
	}
}

func (in *Instance) handshake(p *peer, msg wire.GameMessage) {
	switch msg.Type {
	case wire.GameJoin:
		idx := in.seatOf(msg.Username)
		if idx < 0 {
			in.reject(p, "not a player in this room")
			return
		}
		if err := in.cfg.Tickets.Verify(msg.Ticket, msg.Username, in.cfg.RoomID); err != nil {
			in.reject(p, err.Error())
			return
		}
		s := in.seats[idx]
		if s.peer != nil || in.started {
			in.reject(p, "player already joined")
			return
		}
		p.role = wire.RolePlayer
		p.username = msg.Username
		p.seat = idx
		s.peer = p
		in.peers[p] = struct{}{}
		p.enqueue(in.welcome(wire.RolePlayer))
		in.logger.Info("player joined", slog.String("username", p.username), slog.String("remote", p.conn.RemoteAddr()))

	case wire.GameWatch:
		if msg.RoomID != "" && msg.RoomID != string(in.cfg.RoomID) {
			in.reject(p, "wrong room")
			return
		}
		p.role = wire.RoleWatcher
		p.username = msg.Username
		in.peers[p] = struct{}{}
		p.enqueue(in.welcome(wire.RoleWatcher))
		if in.started {
			p.enqueue(wire.GameMessage{Type: wire.GameStart, Players: in.cfg.Players})
			for _, s := range in.seats {
				p.enqueue(in.snapshot(s))
			}
		}
		in.logger.Debug("watcher joined", slog.String("username", p.username))

	default:
		in.reject(p, "expected JOIN or WATCH")
	}
}

func (in *Instance) reject(p *peer, reason string) {
	p.enqueue(wire.GameMessage{Type: wire.GameError, Message: reason})
	p.close()
}

func (in *Instance) welcome(role string) wire.GameMessage {
	return wire.GameMessage{
		Type:        wire.GameWelcome,
		Role:        role,
		RoomID:      string(in.cfg.RoomID),
		Seed:        in.cfg.Seed,
		BagRule:     string(in.cfg.Manifest.BagRule),
		GravityPlan: &wire.GravityPlan{DropMs: in.dropMs},
	}
}

func (in *Instance) seatOf(username string) int {
	for i, s := range in.seats {
		if s.username == username {
			return i
		}
	}
	return -1
}

func (in *Instance) disconnect(p *peer) {
	delete(in.peers, p)
	p.close()
	if p.seat < 0 {
		return
	}

	s := in.seats[p.seat]
	if s.peer != p {
		return
	}
	s.peer = nil
	s.ready = false
	in.logger.Info("player disconnected", slog.String("username", s.username), slog.Bool("started", in.started))

	if in.started {
		other := in.seats[1-p.seat]
		in.end(other.username, model.ReasonForfeit)
	}
}

func (in *Instance) maybeStart() {
	if in.started {
		return
	}
	for _, s := range in.seats {
		if s.peer == nil || !s.ready {
			return
		}
	}

	in.started = true
	in.broadcast(wire.GameMessage{Type: wire.GameStart, Players: in.cfg.Players})
	for _, s := range in.seats {
		in.broadcast(in.snapshot(s))
	}
	in.ticker = time.NewTicker(time.Duration(in.dropMs) * time.Millisecond)
	in.tickerCh = in.ticker.C
	in.logger.Info("game started", slog.Any("players", in.cfg.Players))
}

func (in *Instance) input(s *seat, msg wire.GameMessage) {
	if !in.started || s.game.GameOver() {
		return
	}
	if !s.game.Accept(msg.Seq) {
		return
	}
	if s.game.Apply(tetris.Action(msg.Action)) {
		in.broadcast(in.snapshot(s))
	}
	in.afterStep()
}

func (in *Instance) tick() {
	for _, s := range in.seats {
		if s.game.GameOver() {
			continue
		}
		if s.game.Tick() {
			in.broadcast(in.snapshot(s))
		}
	}
	in.afterStep()
}

func (in *Instance) afterStep() {
	if in.checkEnd() {
		return
	}
	in.updateTempo()
}

// checkEnd ends the match once any player has topped out
func (in *Instance) checkEnd() bool {
	a, b := in.seats[0].game, in.seats[1].game
	switch {
	case !a.GameOver() && !b.GameOver():
		return false
	case a.GameOver() && !b.GameOver():
		in.end(in.seats[1].username, model.ReasonToppedOut)
	case b.GameOver() && !a.GameOver():
		in.end(in.seats[0].username, model.ReasonToppedOut)
	default:
		in.end(in.seats[bestOf(tally(a), tally(b))].username, model.ReasonToppedOut)
	}
	return true
}

func tally(p *tetris.Player) model.PlayerScore {
	return model.PlayerScore{Score: p.Score(), Lines: p.Lines()}
}

// bestOf picks the winner when both players topped out: higher score, then
// more lines, then the lower seat index
func bestOf(a, b model.PlayerScore) int {
	if b.Score != a.Score {
		if b.Score > a.Score {
			return 1
		}
		return 0
	}
	if b.Lines > a.Lines {
		return 1
	}
	return 0
}

func (in *Instance) updateTempo() {
	total := 0
	for _, s := range in.seats {
		total += s.game.Lines()
	}
	in.applyTempo(total)
}

// applyTempo moves the tick period to the one due after total cleared
// lines and tells everyone when it changed
func (in *Instance) applyTempo(total int) {
	ms := in.cfg.Manifest.Tempo.DropMs(in.cfg.Manifest.Gravity.DropMs, total)
	if ms == in.dropMs {
		return
	}
	in.dropMs = ms
	if in.ticker != nil {
		in.ticker.Reset(time.Duration(ms) * time.Millisecond)
	}
	in.broadcast(wire.GameMessage{Type: wire.GameTempo, DropMs: ms})
	in.logger.Info("tempo changed", slog.Int("drop_ms", ms), slog.Int("lines", total))
}

func (in *Instance) end(winner, reason string) {
	if in.ended {
		return
	}
	in.ended = true

	scores := make([]model.PlayerScore, 0, len(in.seats))
	final := make([]wire.FinalScore, 0, len(in.seats))
	for _, s := range in.seats {
		scores = append(scores, model.PlayerScore{Username: s.username, Score: s.game.Score(), Lines: s.game.Lines()})
		final = append(final, wire.FinalScore{Username: s.username, Score: s.game.Score(), Lines: s.game.Lines()})
	}
	in.result = Result{
		RoomID: in.cfg.RoomID,
		Winner: winner,
		Reason: reason,
		Scores: scores,
	}

	in.broadcast(wire.GameMessage{
		Type:        wire.GameOver,
		Winner:      winner,
		Reason:      reason,
		FinalScores: final,
	})
	in.logger.Info("game over", slog.String("winner", winner), slog.String("reason", reason))
}

// shutdown flushes and closes every peer and stops the ticker
func (in *Instance) shutdown() {
	if in.ticker != nil {
		in.ticker.Stop()
	}
	for p := range in.peers {
		p.close()
	}
	in.peers = map[*peer]struct{}{}
}

func (in *Instance) broadcast(msg wire.GameMessage) {
	for p := range in.peers {
		if !p.enqueue(msg) {
			in.logger.Warn("dropping slow peer", slog.String("username", p.username), slog.String("role", p.role))
			delete(in.peers, p)
			p.close()
		}
	}
	if in.cfg.Observer != nil {
		in.cfg.Observer(msg)
	}
}

func (in *Instance) snapshot(s *seat) wire.GameMessage {
	state := s.game.State()
	msg := wire.GameMessage{
		Type:     wire.GameSnapshot,
		Username: s.username,
		Hold:     string(state.Hold),
		Score:    wire.IntPtr(state.Score),
		Lines:    wire.IntPtr(state.Lines),
		GameOver: state.GameOver,
	}
	if in.cfg.Encoding == EncodingGrid {
		msg.Board = state.Board.Grid()
	} else {
		msg.BoardRLE = tetris.EncodeRLE(&state.Board)
	}
	if state.Active != nil {
		msg.Active = &wire.ActivePiece{
			Shape:    string(state.Active.Shape),
			Rotation: state.Active.Rotation,
			X:        state.Active.X,
			Y:        state.Active.Y,
		}
	}
	for _, next := range state.Next {
		msg.Next = append(msg.Next, string(next))
	}
	return msg
}
