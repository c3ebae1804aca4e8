package database

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/services/auth"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

func senderRealm(cmd wire.Command) (model.Realm, error) {
	return model.RealmForSender(cmd.Sender)
}

// register: [username, password]
func (b *Backend) register(ctx context.Context, c *call) (wire.Response, error) {
	realm, err := senderRealm(c.cmd)
	if err != nil {
		return wire.Response{}, err
	}
	username, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	password, err := c.cmd.Param(1)
	if err != nil {
		return wire.Response{}, err
	}

	if err := b.auth.Register(ctx, realm, username, password); err != nil {
		return wire.Response{}, err
	}
	username, _ = auth.NormalizeUsername(username)

	b.logger.InfoContext(ctx, "user registered",
		slog.String("username", username),
		slog.String("realm", string(realm)))
	return wire.Success(model.SenderDatabase, wire.MsgRegisterSuccess, username), nil
}

// login: [username, password, ip?, port?]. The lobby appends the client's
// address.
func (b *Backend) login(ctx context.Context, c *call) (wire.Response, error) {
	if c.peer.LoggedIn() {
		return wire.Response{}, model.ErrAlreadyLoggedIn
	}
	realm, err := senderRealm(c.cmd)
	if err != nil {
		return wire.Response{}, err
	}
	username, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	password, err := c.cmd.Param(1)
	if err != nil {
		return wire.Response{}, err
	}
	username, err = auth.NormalizeUsername(username)
	if err != nil {
		return wire.Response{}, err
	}

	ok, err := b.auth.Verify(ctx, realm, username, password)
	if err != nil {
		return wire.Response{}, err
	}
	if !ok {
		return wire.Response{}, model.ErrInvalidCredentials
	}

	address := ""
	if ip := c.cmd.OptionalParam(2); ip != "" {
		address = net.JoinHostPort(ip, c.cmd.OptionalParam(3))
	}
	session, err := b.registry(realm).Login(username, address)
	if err != nil {
		return wire.Response{}, err
	}
	c.peer.Username = username
	c.peer.Realm = realm

	b.logger.InfoContext(ctx, "user logged in",
		slog.String("username", username),
		slog.String("realm", string(realm)),
		slog.String("address", address))
	return wire.Success(model.SenderDatabase, wire.MsgLoginSuccess, session), nil
}

// logout releases the caller's rooms and ends their session. The reply
// carries the verdicts of games whose instance must be ended.
func (b *Backend) logout(ctx context.Context, c *call) (wire.Response, error) {
	var n notices
	ended := b.release(ctx, c.username, c.realm, &n)
	c.peer.reset()
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgLogoutSuccess, c.username, ended)), nil
}

// serverClosed: [username, realm]. Sent by the lobby when a client
// connection drops, and by Disconnect.
func (b *Backend) serverClosed(ctx context.Context, c *call) (wire.Response, error) {
	username := c.cmd.OptionalParam(0)
	realm := model.Realm(c.cmd.OptionalParam(1))
	if username == "" {
		username, realm = c.peer.Username, c.peer.Realm
	}
	if !realm.Valid() {
		realm = model.RealmPlayer
	}
	if username == "" {
		return wire.Success(model.SenderDatabase, wire.MsgServerClosedAck), nil
	}
	if c.peer.LoggedIn() && (username != c.peer.Username || realm != c.peer.Realm) {
		return wire.Response{}, model.ErrForbidden
	}
	if !c.peer.LoggedIn() && c.cmd.Sender != model.SenderLobby {
		return wire.Response{}, model.ErrAuthRequired
	}

	var n notices
	ended := b.release(ctx, username, realm, &n)
	c.peer.reset()
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgServerClosedAck, username, ended)), nil
}

// release ends the session of username and cleans up after it:
//  1. a game the user is playing is finished as a forfeit
//  2. every live room the user created is removed; its other players go
//     idle and are told the room closed
//  3. invites referring to removed rooms are dropped
//  4. a room the user sits in as a non-creator is left
//
// Returns the verdicts of finished rooms whose instance must be ended.
func (b *Backend) release(ctx context.Context, username string, realm model.Realm, n *notices) []model.GameEnding {
	if _, err := b.registry(realm).Logout(username); err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		b.logger.WarnContext(ctx, "failed to end session",
			slog.String("username", username),
			slog.String("error", err.Error()))
	}
	ended := []model.GameEnding{}
	if realm != model.RealmPlayer {
		return ended
	}

	if room, ok := b.rooms.RoomOf(username); ok && room.Status == model.RoomInGame {
		winner := room.Other(username)
		if winner == "" {
			winner = model.WinnerNone
		}
		finished, err := b.rooms.Finish(room.ID, model.GameResults{
			Winner: winner,
			Reason: model.ReasonForfeit,
		})
		if err == nil {
			ended = append(ended, model.GameEnding{
				RoomID: finished.ID,
				Winner: winner,
				Reason: model.ReasonForfeit,
			})
			b.settleFinished(finished, n)
		}
	}

	for _, room := range b.rooms.RemoveCreatedBy(username) {
		b.players().ClearInvitesForRoom(room.ID)
		for _, p := range room.Players {
			if p == username {
				continue
			}
			b.setStatus(p, model.StatusIdle)
			n.player(p, b.event(model.EventRoomClosed, room, username, ""))
		}
		b.logger.InfoContext(ctx, "room closed with its creator",
			slog.String("room_id", string(room.ID)),
			slog.String("creator", username))
	}

	if _, ok := b.rooms.RoomOf(username); ok {
		if left, err := b.rooms.Leave(username); err == nil {
			b.afterLeave(left, username, n)
		}
	}

	b.logger.InfoContext(ctx, "user logged out", slog.String("username", username))
	return ended
}

// setStatus updates the presence of a player who may have gone offline
func (b *Backend) setStatus(username string, status model.SessionStatus) {
	_ = b.players().UpdateStatus(username, status)
}
