package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// GameConn is a connection to a game instance
type GameConn struct {
	codec *wire.Codec
	seq   int64
}

// DialGame connects to the instance described by info, retrying while
// the instance comes up
func DialGame(ctx context.Context, cfg Config, info wire.P2PInfo, logger *slog.Logger) (*GameConn, error) {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ConnectInterval), uint64(attempts-1)),
		ctx,
	)

	var conn net.Conn
	dial := func() error {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		c, err := d.DialContext(ctx, "tcp", info.Addr())
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("game instance not reachable yet",
			slog.String("addr", info.Addr()),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(dial, policy, notify); err != nil {
		return nil, fmt.Errorf("connect to game %s: %w", info.Addr(), err)
	}

	codec := wire.NewCodec(conn, cfg.MaxFrameSize)
	codec.DiscardOversize = true
	return &GameConn{codec: codec}, nil
}

// Join takes the caller's seat
func (g *GameConn) Join(username string, roomID model.RoomID, ticket string) error {
	return g.codec.Write(wire.GameMessage{
		Type:     wire.GameJoin,
		Username: username,
		RoomID:   string(roomID),
		Ticket:   ticket,
	})
}

// Watch follows the game without a seat
func (g *GameConn) Watch(username string, roomID model.RoomID) error {
	return g.codec.Write(wire.GameMessage{
		Type:     wire.GameWatch,
		Username: username,
		RoomID:   string(roomID),
	})
}

// Ready tells the instance the player is ready to start
func (g *GameConn) Ready() error {
	return g.codec.Write(wire.GameMessage{Type: wire.GameReady})
}

// Input sends one action with the next sequence number
func (g *GameConn) Input(action tetris.Action) error {
	g.seq++
	return g.codec.Write(wire.GameMessage{
		Type:   wire.GameInput,
		Seq:    g.seq,
		Ts:     time.Now().UnixMilli(),
		Action: string(action),
	})
}

// Read returns the next message from the instance
func (g *GameConn) Read() (wire.GameMessage, error) {
	var msg wire.GameMessage
	err := g.codec.Read(&msg)
	return msg, err
}

// Close ends the connection
func (g *GameConn) Close() error {
	return g.codec.Close()
}

// BoardView is a client's copy of one player's board, rebuilt from
// snapshots. Applying the same snapshot twice leaves it unchanged.
type BoardView struct {
	Username string
	Board    tetris.Board
	Active   *wire.ActivePiece
	Hold     string
	Next     []string
	Score    int
	Lines    int
	GameOver bool
}

// Apply replaces the view with the contents of a snapshot
func (v *BoardView) Apply(msg wire.GameMessage) error {
	if msg.Type != wire.GameSnapshot {
		return fmt.Errorf("%w: expected %s, got %s", model.ErrBadRequest, wire.GameSnapshot, msg.Type)
	}
	var board tetris.Board
	var err error
	switch {
	case msg.BoardRLE != "":
		board, err = tetris.DecodeRLE(msg.BoardRLE)
	default:
		board, err = tetris.BoardFromGrid(msg.Board)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrBadRequest, err)
	}

	v.Username = msg.Username
	v.Board = board
	v.Active = msg.Active
	v.Hold = msg.Hold
	v.Next = append([]string(nil), msg.Next...)
	if msg.Score != nil {
		v.Score = *msg.Score
	}
	if msg.Lines != nil {
		v.Lines = *msg.Lines
	}
	v.GameOver = msg.GameOver
	return nil
}

// Render draws the board as text with the active piece overlaid
func (v *BoardView) Render() string {
	grid := v.Board
	if v.Active != nil {
		piece := tetris.Piece{
			Shape:    tetris.Shape(v.Active.Shape),
			Rotation: v.Active.Rotation,
			X:        v.Active.X,
			Y:        v.Active.Y,
		}
		for _, c := range piece.Cells() {
			if c.X >= 0 && c.X < tetris.Width && c.Y >= 0 && c.Y < tetris.Height {
				grid[c.Y][c.X] = 2
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  score %d  lines %d\n", v.Username, v.Score, v.Lines)
	for y := range grid {
		sb.WriteByte('|')
		for _, cell := range grid[y] {
			switch cell {
			case 0:
				sb.WriteString(" .")
			case 2:
				sb.WriteString(" @")
			default:
				sb.WriteString(" #")
			}
		}
		sb.WriteString(" |\n")
	}
	sb.WriteString("+" + strings.Repeat("--", tetris.Width) + "-+\n")
	if v.GameOver {
		sb.WriteString("GAME OVER\n")
	}
	return sb.String()
}
