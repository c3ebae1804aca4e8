package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/services/rooms"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// createRoom: [visibility, game_kind]
func (b *Backend) createRoom(ctx context.Context, c *call) (wire.Response, error) {
	visibility, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	kind, err := c.cmd.Param(1)
	if err != nil {
		return wire.Response{}, err
	}
	if _, ok := b.rooms.RoomOf(c.username); ok {
		return wire.Response{}, model.ErrAlreadyIn
	}

	artifact, err := b.marketplace.Get(ctx, kind)
	if errors.Is(err, model.ErrGameNotFound) {
		return wire.Response{}, fmt.Errorf("%w: %s", model.ErrUnknownGame, kind)
	}
	if err != nil {
		return wire.Response{}, err
	}

	room, err := b.rooms.Create(c.username, model.Visibility(visibility), artifact.Name, artifact.Version)
	if err != nil {
		return wire.Response{}, err
	}
	b.setStatus(c.username, model.StatusInRoom)

	b.logger.InfoContext(ctx, "room created",
		slog.String("room_id", string(room.ID)),
		slog.String("creator", c.username),
		slog.String("game", room.GameKind))
	return wire.Success(model.SenderDatabase, wire.MsgCreateRoomSuccess, room), nil
}

// joinRoom: [room_id]. A private room admits only holders of an invite for
// it; joining consumes the invite.
func (b *Backend) joinRoom(ctx context.Context, c *call) (wire.Response, error) {
	id, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	roomID := model.RoomID(id)

	invited := false
	if invites, err := b.players().Invites(c.username); err == nil {
		for _, inv := range invites {
			if inv.RoomID == roomID {
				invited = true
				break
			}
		}
	}

	room, err := b.rooms.Join(roomID, c.username, invited)
	if err != nil {
		return wire.Response{}, err
	}
	if invited {
		_, _ = b.players().PopInvite(c.username, func(inv model.Invite) bool { return inv.RoomID == roomID })
	}

	var n notices
	b.afterJoin(room, c.username, &n)
	b.logger.InfoContext(ctx, "player joined room",
		slog.String("room_id", id),
		slog.String("username", c.username))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgJoinRoomSuccess, room)), nil
}

func (b *Backend) afterJoin(room model.Room, username string, n *notices) {
	b.setStatus(username, model.StatusInRoom)
	for _, p := range room.Players {
		if p != username {
			n.player(p, b.event(model.EventPlayerJoined, room, username, ""))
		}
	}
}

func (b *Backend) leaveRoom(ctx context.Context, c *call) (wire.Response, error) {
	left, err := b.rooms.Leave(c.username)
	if err != nil {
		return wire.Response{}, err
	}

	var n notices
	b.afterLeave(left, c.username, &n)
	b.logger.InfoContext(ctx, "player left room",
		slog.String("room_id", string(left.Room.ID)),
		slog.String("username", c.username),
		slog.Bool("deleted", left.Deleted))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgLeaveRoomSuccess, left.Room)), nil
}

func (b *Backend) afterLeave(left rooms.LeaveResult, username string, n *notices) {
	b.setStatus(username, model.StatusIdle)
	if left.Deleted {
		b.players().ClearInvitesForRoom(left.Room.ID)
		return
	}
	for _, p := range left.Room.Players {
		n.player(p, b.event(model.EventPlayerLeft, left.Room, username, ""))
		if left.NewHost != "" {
			n.player(p, b.event(model.EventHostChanged, left.Room, left.NewHost, ""))
		}
	}
}

// invitePlayer: [invitee, room_id?]. Without a room id the inviter's own
// room is used.
func (b *Backend) invitePlayer(ctx context.Context, c *call) (wire.Response, error) {
	invitee, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	if invitee == c.username {
		return wire.Response{}, model.ErrInviteSelf
	}
	roomID := model.RoomID(c.cmd.OptionalParam(1))
	if roomID == "" {
		room, ok := b.rooms.RoomOf(c.username)
		if !ok {
			return wire.Response{}, model.ErrNotInRoom
		}
		roomID = room.ID
	}

	room, err := b.rooms.CanInvite(c.username, roomID)
	if err != nil {
		return wire.Response{}, err
	}
	invite := model.Invite{
		Inviter:   c.username,
		Invitee:   invitee,
		RoomID:    room.ID,
		GameKind:  room.GameKind,
		CreatedAt: b.clock.Now(),
	}
	if err := b.players().EnqueueInvite(invite); err != nil {
		return wire.Response{}, err
	}

	var n notices
	n.player(invitee, wire.NewResponse(model.SenderDatabase, wire.StatusInvite, string(model.EventInviteReceived), invite))
	b.logger.InfoContext(ctx, "invite sent",
		slog.String("room_id", string(room.ID)),
		slog.String("inviter", c.username),
		slog.String("invitee", invitee))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgInviteSent, invite)), nil
}

func inviteParams(cmd wire.Command) (string, model.RoomID, error) {
	inviter, err := cmd.Param(0)
	if err != nil {
		return "", "", err
	}
	id, err := cmd.Param(1)
	if err != nil {
		return "", "", err
	}
	return inviter, model.RoomID(id), nil
}

// accept: [inviter, room_id]
func (b *Backend) accept(ctx context.Context, c *call) (wire.Response, error) {
	inviter, roomID, err := inviteParams(c.cmd)
	if err != nil {
		return wire.Response{}, err
	}
	match := func(inv model.Invite) bool {
		return inv.Matches(inviter, roomID)
	}
	invites, err := b.players().Invites(c.username)
	if err != nil {
		return wire.Response{}, err
	}
	if !slices.ContainsFunc(invites, match) {
		return wire.Response{}, model.ErrNoInvite
	}

	// the invite survives a join that fails
	room, err := b.rooms.Join(roomID, c.username, true)
	if err != nil {
		return wire.Response{}, err
	}
	_, _ = b.players().PopInvite(c.username, match)

	var n notices
	b.afterJoin(room, c.username, &n)
	b.logger.InfoContext(ctx, "invite accepted",
		slog.String("room_id", string(roomID)),
		slog.String("inviter", inviter),
		slog.String("invitee", c.username))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgJoinRoomSuccess, room)), nil
}

// decline: [inviter, room_id]
func (b *Backend) decline(ctx context.Context, c *call) (wire.Response, error) {
	inviter, roomID, err := inviteParams(c.cmd)
	if err != nil {
		return wire.Response{}, err
	}
	invite, err := b.players().PopInvite(c.username, func(inv model.Invite) bool {
		return inv.Matches(inviter, roomID)
	})
	if err != nil {
		return wire.Response{}, err
	}

	var n notices
	n.player(inviter, wire.NewResponse(model.SenderDatabase, wire.StatusInviteDeclined, string(model.EventInviteDeclined), invite))
	b.logger.DebugContext(ctx, "invite declined",
		slog.String("room_id", string(roomID)),
		slog.String("invitee", c.username))
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgDeclineSuccess, invite)), nil
}

func (b *Backend) check(_ context.Context, c *call) (wire.Response, error) {
	invites, err := b.players().Invites(c.username)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgInvites, invites), nil
}

func (b *Backend) showStatus(_ context.Context, _ *call) (wire.Response, error) {
	return wire.NewResponse(model.SenderDatabase, wire.StatusStatus, wire.MsgStatus, b.Status()), nil
}

// Status returns the live rooms, online players and finished rooms
func (b *Backend) Status() model.StatusReport {
	sessions := b.players().List()
	for i := range sessions {
		sessions[i].PendingInvites = nil
	}
	return model.StatusReport{
		Rooms:       b.rooms.List(),
		OnlineUsers: sessions,
		History:     b.rooms.History(),
	}
}
