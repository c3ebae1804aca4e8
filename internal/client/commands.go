package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Register creates an account in realm. It does not log in.
func (c *Client) Register(ctx context.Context, realm model.Realm, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realm = realm
	_, err := c.do(ctx, wire.CmdRegister, username, password)
	return err
}

// Login starts a session in realm
func (c *Client) Login(ctx context.Context, realm model.Realm, username, password string) (model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realm = realm
	resp, err := c.do(ctx, wire.CmdLogin, username, password)
	if err != nil {
		return model.Session{}, err
	}
	var session model.Session
	if err := resp.DecodeParam(0, &session); err != nil {
		return model.Session{}, err
	}
	c.username = session.Username
	return session, nil
}

// Logout ends the session; the connection stays open
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.do(ctx, wire.CmdLogout); err != nil {
		return err
	}
	c.username = ""
	return nil
}

func (c *Client) roomCall(ctx context.Context, command string, params ...any) (model.Room, error) {
	resp, err := c.Do(ctx, command, params...)
	if err != nil {
		return model.Room{}, err
	}
	var room model.Room
	if err := resp.DecodeParam(0, &room); err != nil {
		return model.Room{}, err
	}
	return room, nil
}

// CreateRoom opens a room bound to the current version of gameKind
func (c *Client) CreateRoom(ctx context.Context, visibility model.Visibility, gameKind string) (model.Room, error) {
	return c.roomCall(ctx, wire.CmdCreateRoom, string(visibility), gameKind)
}

// JoinRoom takes the free seat of a room
func (c *Client) JoinRoom(ctx context.Context, roomID model.RoomID) (model.Room, error) {
	return c.roomCall(ctx, wire.CmdJoinRoom, string(roomID))
}

// LeaveRoom leaves the caller's room
func (c *Client) LeaveRoom(ctx context.Context) (model.Room, error) {
	return c.roomCall(ctx, wire.CmdLeaveRoom)
}

// Invite asks invitee to join the caller's room
func (c *Client) Invite(ctx context.Context, invitee string) (model.Invite, error) {
	resp, err := c.Do(ctx, wire.CmdInvitePlayer, invitee)
	if err != nil {
		return model.Invite{}, err
	}
	var invite model.Invite
	if err := resp.DecodeParam(0, &invite); err != nil {
		return model.Invite{}, err
	}
	return invite, nil
}

// Accept takes up a pending invite
func (c *Client) Accept(ctx context.Context, inviter string, roomID model.RoomID) (model.Room, error) {
	return c.roomCall(ctx, wire.CmdAccept, inviter, string(roomID))
}

// Decline drops a pending invite
func (c *Client) Decline(ctx context.Context, inviter string, roomID model.RoomID) error {
	_, err := c.Do(ctx, wire.CmdDecline, inviter, string(roomID))
	return err
}

// Invites lists the caller's pending invites
func (c *Client) Invites(ctx context.Context) ([]model.Invite, error) {
	resp, err := c.Do(ctx, wire.CmdCheck)
	if err != nil {
		return nil, err
	}
	var invites []model.Invite
	if err := resp.DecodeParam(0, &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

// Status returns live rooms, online users and recent finished rooms
func (c *Client) Status(ctx context.Context) (model.StatusReport, error) {
	resp, err := c.Do(ctx, wire.CmdShowStatus)
	if err != nil {
		return model.StatusReport{}, err
	}
	var report model.StatusReport
	if err := resp.DecodeParam(0, &report); err != nil {
		return model.StatusReport{}, err
	}
	return report, nil
}

// StartGame starts the caller's room. Connection details arrive as a
// p2p_info notification on Events.
func (c *Client) StartGame(ctx context.Context) (model.Room, error) {
	return c.roomCall(ctx, wire.CmdStartGame)
}

// GameOver tells the lobby the caller's game has ended
func (c *Client) GameOver(ctx context.Context) error {
	_, err := c.Do(ctx, wire.CmdGameOver)
	return err
}

func (c *Client) listings(ctx context.Context, command string) ([]model.ArtifactListing, error) {
	resp, err := c.Do(ctx, command)
	if err != nil {
		return nil, err
	}
	var listings []model.ArtifactListing
	if err := resp.DecodeParam(0, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// ListGames lists every published game
func (c *Client) ListGames(ctx context.Context) ([]model.ArtifactListing, error) {
	return c.listings(ctx, wire.CmdListAllGames)
}

// ListOwnGames lists the games published by the caller
func (c *Client) ListOwnGames(ctx context.Context) ([]model.ArtifactListing, error) {
	return c.listings(ctx, wire.CmdListOwnGames)
}

// DeleteGame removes a game the caller published and returns how the
// rooms finished because of it ended
func (c *Client) DeleteGame(ctx context.Context, name string) ([]model.GameEnding, error) {
	resp, err := c.Do(ctx, wire.CmdDeleteGame, name)
	if err != nil {
		return nil, err
	}
	var ended []model.GameEnding
	if err := resp.DecodeParam(1, &ended); err != nil {
		return nil, err
	}
	return ended, nil
}

// LeaveReview rates a game from 1 to 5
func (c *Client) LeaveReview(ctx context.Context, name string, rating int, comment string) (model.Review, error) {
	resp, err := c.Do(ctx, wire.CmdLeaveReview, name, strconv.Itoa(rating), comment)
	if err != nil {
		return model.Review{}, err
	}
	var review model.Review
	if err := resp.DecodeParam(0, &review); err != nil {
		return model.Review{}, err
	}
	return review, nil
}

// Reviews returns the reviews of a game with their summary
func (c *Client) Reviews(ctx context.Context, name string) ([]model.Review, model.ReviewSummary, error) {
	resp, err := c.Do(ctx, wire.CmdGetReviews, name)
	if err != nil {
		return nil, model.ReviewSummary{}, err
	}
	var list []model.Review
	var summary model.ReviewSummary
	if err := resp.DecodeParam(1, &list); err != nil {
		return nil, model.ReviewSummary{}, err
	}
	if err := resp.DecodeParam(2, &summary); err != nil {
		return nil, model.ReviewSummary{}, err
	}
	return list, summary, nil
}

// Published is the outcome of an upload or update
type Published struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Upload publishes a new game
func (c *Client) Upload(ctx context.Context, name, description string, data []byte) (Published, error) {
	return c.publish(ctx, wire.CmdUploadGame, name, description, data)
}

// Update replaces the bytes of a game the caller published. An empty
// description keeps the current one.
func (c *Client) Update(ctx context.Context, name, description string, data []byte) (Published, error) {
	return c.publish(ctx, wire.CmdUpdateGame, name, description, data)
}

// publish sends the command, waits for the lobby to be ready, then sends
// the header and the bytes
func (c *Client) publish(ctx context.Context, command, name, description string, data []byte) (Published, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.codec.Write(wire.NewCommand(c.realm.Sender(), command, name, description)); err != nil {
		return Published{}, fmt.Errorf("%w: %v", model.ErrTransportClosed, err)
	}
	f, err := c.await(ctx, c.cfg.ReadyTimeout)
	if err != nil {
		return Published{}, err
	}
	if err := f.resp.Err(); err != nil {
		return Published{}, err
	}
	if f.resp.Status != wire.StatusReady {
		return Published{}, fmt.Errorf("%w: expected %s, got %s", model.ErrBadRequest, wire.StatusReady, f.resp.Status)
	}

	if err := c.codec.WriteWithRaw(wire.UploadHeader{FileSize: int64(len(data))}, data); err != nil {
		return Published{}, fmt.Errorf("%w: %v", model.ErrTransportClosed, err)
	}
	f, err = c.await(ctx, c.cfg.RequestTimeout)
	if err != nil {
		return Published{}, err
	}
	if err := f.resp.Err(); err != nil {
		return Published{}, err
	}
	return Published{Name: f.resp.Param(0), Version: f.resp.Param(1)}, nil
}

// Artifact is a downloaded game
type Artifact struct {
	Name    string
	Version string
	Data    []byte
}

// Download fetches a game. An empty version asks for the current one.
func (c *Client) Download(ctx context.Context, name, version string) (Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params := []any{name}
	if version != "" {
		params = append(params, version)
	}
	if err := c.codec.Write(wire.NewCommand(c.realm.Sender(), wire.CmdDownloadGame, params...)); err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", model.ErrTransportClosed, err)
	}
	f, err := c.await(ctx, c.cfg.DownloadTimeout)
	if err != nil {
		return Artifact{}, err
	}
	if err := f.resp.Err(); err != nil {
		return Artifact{}, err
	}
	if f.resp.Status != wire.StatusFileTransfer {
		return Artifact{}, fmt.Errorf("%w: expected %s, got %s", model.ErrBadRequest, wire.StatusFileTransfer, f.resp.Status)
	}
	var ft wire.FileTransfer
	if err := f.resp.DecodeParam(0, &ft); err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: ft.Name, Version: ft.Version, Data: f.data}, nil
}
