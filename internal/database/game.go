package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// startGame moves the caller's room into play. The reply carries the room
// and the download ticket of the version it is bound to; the lobby starts
// the instance and sends GAME_ABORTED if that fails.
func (b *Backend) startGame(ctx context.Context, c *call) (wire.Response, error) {
	room, ok := b.rooms.RoomOf(c.username)
	if !ok {
		return wire.Response{}, model.ErrNotInRoom
	}

	ticket, err := b.marketplace.Resolve(ctx, room.GameKind, room.GameVersion)
	if errors.Is(err, model.ErrGameNotFound) || errors.Is(err, model.ErrVersionNotFound) {
		return wire.Response{}, fmt.Errorf("%w: %s", model.ErrUnknownGame, room.GameKind)
	}
	if err != nil {
		return wire.Response{}, err
	}

	started, err := b.rooms.Start(room.ID, c.username)
	if err != nil {
		return wire.Response{}, err
	}
	for _, p := range started.Players {
		b.setStatus(p, model.StatusInGame)
	}

	b.logger.InfoContext(ctx, "game started",
		slog.String("room_id", string(started.ID)),
		slog.String("game", started.GameKind),
		slog.String("version", started.GameVersion))
	return wire.Success(model.SenderDatabase, wire.MsgStartGameSuccess, started, ticket), nil
}

// gameOver acknowledges a client's end-of-game notice. The room itself is
// finished by GAME_ENDED from the lobby; a player still marked in game
// after their room has gone is released here.
func (b *Backend) gameOver(_ context.Context, c *call) (wire.Response, error) {
	room, ok := b.rooms.RoomOf(c.username)
	if !ok || room.Status != model.RoomInGame {
		if s, online := b.players().Get(c.username); online && s.Status == model.StatusInGame {
			b.setStatus(c.username, model.StatusIdle)
		}
	}
	return wire.Success(model.SenderDatabase, wire.MsgGameOverAck), nil
}

// gameEnded: [room_id, results]. Reports for rooms that are not in play are
// acknowledged and ignored.
func (b *Backend) gameEnded(ctx context.Context, c *call) (wire.Response, error) {
	id, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	var results model.GameResults
	if err := c.cmd.DecodeParam(1, &results); err != nil {
		return wire.Response{}, err
	}

	room, err := b.rooms.Get(model.RoomID(id))
	if err != nil || room.Status != model.RoomInGame {
		b.logger.DebugContext(ctx, "ignoring end of game for room not in play",
			slog.String("room_id", id))
		return wire.Success(model.SenderDatabase, wire.MsgGameEndedAck), nil
	}

	finished, err := b.rooms.Finish(room.ID, results)
	if err != nil {
		return wire.Response{}, err
	}

	var n notices
	b.settleFinished(finished, &n)
	b.logger.InfoContext(ctx, "game ended",
		slog.String("room_id", id),
		slog.String("winner", results.Winner),
		slog.String("reason", results.Reason))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgGameEndedAck, finished)), nil
}

// gameAborted: [room_id]. Returns a room whose instance never started to
// Ready.
func (b *Backend) gameAborted(ctx context.Context, c *call) (wire.Response, error) {
	id, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	room, err := b.rooms.Abort(model.RoomID(id))
	if errors.Is(err, model.ErrNoRoom) {
		return wire.Success(model.SenderDatabase, wire.MsgGameAbortedAck), nil
	}
	if err != nil {
		return wire.Response{}, err
	}

	var n notices
	for _, p := range room.Players {
		b.setStatus(p, model.StatusInRoom)
		n.player(p, b.event(model.EventGameAborted, room, "", model.ReasonAborted))
	}
	b.logger.WarnContext(ctx, "game aborted", slog.String("room_id", id))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgGameAbortedAck, room)), nil
}

// settleFinished returns the players of a finished room to idle and tells
// them how the game ended
func (b *Backend) settleFinished(room model.Room, n *notices) {
	reason := ""
	if room.Results != nil {
		reason = room.Results.Reason
	}
	for _, p := range room.Players {
		b.setStatus(p, model.StatusIdle)
		n.player(p, b.event(model.EventGameFinished, room, "", reason))
	}
}
