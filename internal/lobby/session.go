package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/gamelobby-go/internal/blobstore"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// errReplied means the handler wrote its own reply
var errReplied = errors.New("reply already written")

// fatalError ends the client connection after its reply is written
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f) || errors.Is(err, model.ErrDownstreamUnavailable)
}

// Session relays one client connection to its own database connection.
// The client pump issues one command at a time; the database pump routes
// replies back to it and relays pushed notifications straight to the
// client.
type Session struct {
	id     string
	server *Server
	client *wire.Codec
	db     *wire.Codec
	logger *slog.Logger

	replies chan wire.Response
	// abandoned counts replies still owed to calls that timed out
	abandoned atomic.Int32
	dbDone    chan struct{}
	quit      chan struct{}
	closing   atomic.Bool
	once      sync.Once

	mu       sync.Mutex
	username string
	realm    model.Realm
}

func newSession(server *Server, id string, client, db *wire.Codec, logger *slog.Logger) *Session {
	return &Session{
		id:      id,
		server:  server,
		client:  client,
		db:      db,
		logger:  logger.With(slog.String("session", id)),
		replies: make(chan wire.Response),
		dbDone:  make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Identity returns the logged-in user, or "" before login
func (s *Session) Identity() (string, model.Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.realm
}

func (s *Session) setIdentity(username string, realm model.Realm) {
	s.mu.Lock()
	s.username = username
	s.realm = realm
	s.mu.Unlock()
}

// send writes resp to the client
func (s *Session) send(resp wire.Response) error {
	return s.client.Write(resp.Public())
}

// Run serves the session until the client or the database goes away
func (s *Session) Run(ctx context.Context) {
	s.logger.Debug("client connected")
	go s.pumpDatabase()

	s.pumpClient(ctx)
	s.closing.Store(true)
	_ = s.client.Close()

	if username, realm := s.Identity(); username != "" {
		s.server.directory.Remove(realm, username, s)
		s.announceClose(username, realm)
	}

	close(s.quit)
	_ = s.db.Close()
	<-s.dbDone
	s.logger.Debug("client disconnected")
}

// announceClose tells the database the client is gone and ends any
// instance it forfeited
func (s *Session) announceClose(username string, realm model.Realm) {
	ctx, cancel := context.WithTimeout(context.Background(), s.server.cfg.CloseAckTimeout)
	defer cancel()

	cmd := wire.NewCommand(model.SenderLobby, wire.CmdServerClosed, username, string(realm))
	resp, err := s.call(ctx, cmd)
	if err != nil {
		s.logger.Warn("no close acknowledgement from database",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return
	}
	var ended []model.GameEnding
	if resp.DecodeParam(1, &ended) == nil {
		s.server.endInstances(ended)
	}
}

func (s *Session) closeTransports() {
	s.once.Do(func() {
		s.closing.Store(true)
		_ = s.client.Close()
		_ = s.db.Close()
	})
}

// pumpDatabase reads frames from the database connection
func (s *Session) pumpDatabase() {
	defer close(s.dbDone)
	for {
		var resp wire.Response
		err := s.db.Read(&resp)
		if errors.Is(err, model.ErrMalformedFrame) {
			s.logger.Warn("malformed frame from database", slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			if !s.closing.Load() {
				s.logger.Warn("database connection lost", slog.String("error", err.Error()))
				_ = s.send(wire.Failure(model.SenderLobby, model.ErrDownstreamUnavailable))
				s.closeTransports()
			}
			return
		}

		switch resp.Status {
		case wire.StatusSuccess, wire.StatusError, wire.StatusStatus:
			select {
			case s.replies <- resp:
			case <-s.quit:
				return
			}
		default:
			if err := s.send(resp); err != nil {
				s.logger.Debug("failed to relay notification", slog.String("error", err.Error()))
			}
		}
	}
}

// call writes cmd to the database and waits for its reply. The database
// answers in order, so replies owed to earlier timed-out calls are skipped.
func (s *Session) call(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	if err := s.db.Write(cmd); err != nil {
		return wire.Response{}, fmt.Errorf("%w: %v", model.ErrDownstreamUnavailable, err)
	}
	for {
		select {
		case resp := <-s.replies:
			if s.abandoned.Load() > 0 {
				s.abandoned.Add(-1)
				s.logger.Debug("dropped late reply", slog.String("message", resp.Message))
				continue
			}
			return resp, nil
		case <-s.dbDone:
			return wire.Response{}, model.ErrDownstreamUnavailable
		case <-ctx.Done():
			s.abandoned.Add(1)
			return wire.Response{}, fmt.Errorf("%w: %v", model.ErrDownstreamUnavailable, ctx.Err())
		}
	}
}

// pumpClient reads and handles client commands until the client leaves or
// a fatal error occurs
func (s *Session) pumpClient(ctx context.Context) {
	for {
		var cmd wire.Command
		err := s.client.Read(&cmd)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrMalformedFrame):
			_ = s.send(wire.Failure(model.SenderLobby, fmt.Errorf("%w: %v", model.ErrBadRequest, err)))
			continue
		case errors.Is(err, model.ErrOversizeFrame):
			_ = s.send(wire.Failure(model.SenderLobby, err))
			return
		default:
			if !wire.IsClosed(err) && !s.closing.Load() {
				s.logger.Debug("client read failed", slog.String("error", err.Error()))
			}
			return
		}

		resp, err := s.handle(ctx, cmd)
		if errors.Is(err, errReplied) {
			continue
		}
		if err != nil {
			_ = s.send(wire.Failure(model.SenderLobby, err))
			if isFatal(err) {
				return
			}
			continue
		}
		if err := s.send(resp); err != nil {
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	if cmd.Sender != model.SenderClient && cmd.Sender != model.SenderGameDev {
		return wire.Response{}, fmt.Errorf("%w: sender %q", model.ErrForbidden, cmd.Sender)
	}
	switch cmd.Command {
	case wire.CmdGameEnded, wire.CmdGameAborted, wire.CmdServerClosed:
		return wire.Response{}, fmt.Errorf("%w: %s is reserved for the lobby", model.ErrForbidden, cmd.Command)
	case wire.CmdLogin:
		return s.login(ctx, cmd)
	case wire.CmdUploadGame, wire.CmdUpdateGame:
		return s.upload(ctx, cmd)
	}

	resp, err := s.forward(ctx, cmd)
	if err != nil || resp.Status == wire.StatusError {
		return resp, err
	}

	switch cmd.Command {
	case wire.CmdLogout:
		s.afterLogout(resp)
	case wire.CmdCreateRoom, wire.CmdJoinRoom, wire.CmdAccept, wire.CmdLeaveRoom:
		s.publishRoom(resp, cmd.Command)
	case wire.CmdStartGame:
		return s.startGame(ctx, resp)
	case wire.CmdDownloadGame:
		return s.download(ctx, resp)
	case wire.CmdDeleteGame:
		var ended []model.GameEnding
		if resp.DecodeParam(1, &ended) == nil {
			s.server.endInstances(ended)
		}
	}
	return resp, nil
}

func (s *Session) forward(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.server.cfg.RequestTimeout)
	defer cancel()
	return s.call(ctx, cmd)
}

// login appends the client's address and records the identity on success
func (s *Session) login(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	ip, port := "", ""
	if addr := s.client.RemoteAddr(); addr != nil {
		ip, port, _ = net.SplitHostPort(addr.String())
	}
	if len(cmd.Params) >= 2 {
		cmd.Params = cmd.Params[:2]
	}
	resp, err := s.forward(ctx, cmd.Append(ip, port))
	if err != nil || resp.Status != wire.StatusSuccess {
		return resp, err
	}

	var session model.Session
	if err := resp.DecodeParam(0, &session); err != nil {
		return wire.Response{}, fmt.Errorf("decode session: %w", err)
	}
	s.setIdentity(session.Username, session.Realm)
	s.server.directory.Add(session.Realm, session.Username, s)
	s.logger.Info("user logged in",
		slog.String("username", session.Username),
		slog.String("realm", string(session.Realm)))
	return resp, nil
}

func (s *Session) afterLogout(resp wire.Response) {
	username, realm := s.Identity()
	s.server.directory.Remove(realm, username, s)
	s.setIdentity("", "")

	var ended []model.GameEnding
	if resp.DecodeParam(1, &ended) == nil {
		s.server.endInstances(ended)
	}
}

func (s *Session) publishRoom(resp wire.Response, command string) {
	var room model.Room
	if resp.DecodeParam(0, &room) != nil {
		return
	}
	username, _ := s.Identity()
	event := model.RoomEvent{RoomID: room.ID, Username: username, Room: &room, Timestamp: time.Now()}
	switch command {
	case wire.CmdCreateRoom, wire.CmdJoinRoom, wire.CmdAccept:
		event.Type = model.EventPlayerJoined
	case wire.CmdLeaveRoom:
		event.Type = model.EventPlayerLeft
		if len(room.Players) == 0 {
			event.Type = model.EventRoomClosed
		}
	}
	s.server.publish(event)
}

// upload runs the ready handshake, stores the bytes and registers the
// version. Bytes that do not arrive in time end the session.
func (s *Session) upload(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	username, realm := s.Identity()
	if username == "" {
		return wire.Response{}, model.ErrAuthRequired
	}
	if realm != model.RealmDeveloper {
		return wire.Response{}, model.ErrForbidden
	}
	name, err := cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	description := cmd.OptionalParam(1)

	if err := s.send(wire.NewResponse(model.SenderLobby, wire.StatusReady, wire.MsgReadyForUpload, name)); err != nil {
		return wire.Response{}, fatal(model.ErrTransportClosed)
	}

	data, err := s.receiveArtifact()
	if err != nil {
		return wire.Response{}, err
	}

	key := blobstore.Key(name, s.server.random.UUID())
	if err := s.server.blobs.Put(ctx, key, data); err != nil {
		return wire.Response{}, fmt.Errorf("store artifact: %w", err)
	}

	forwarded := wire.NewCommand(cmd.Sender, cmd.Command, name, description, key, len(data))
	resp, err := s.forward(ctx, forwarded)
	if err != nil || resp.Status == wire.StatusError {
		if derr := s.server.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to remove rejected artifact",
				slog.String("key", key),
				slog.String("error", derr.Error()))
		}
	}
	return resp, err
}

func (s *Session) receiveArtifact() ([]byte, error) {
	_ = s.client.SetReadDeadline(time.Now().Add(s.server.cfg.UploadTimeout))
	defer func() { _ = s.client.SetReadDeadline(time.Time{}) }()

	var header wire.UploadHeader
	if err := s.client.Read(&header); err != nil {
		if errors.Is(err, model.ErrMalformedFrame) {
			return nil, fatal(model.ErrBadRequest)
		}
		return nil, fatal(model.ErrTransferTimeout)
	}
	if header.FileSize < 0 {
		return nil, fatal(model.ErrBadRequest)
	}
	if header.FileSize > s.server.cfg.MaxArtifactSize {
		return nil, fatal(model.ErrArtifactTooBig)
	}
	data, err := s.client.ReadRaw(header.FileSize)
	if err != nil {
		return nil, fatal(model.ErrTransferTimeout)
	}
	return data, nil
}

// download answers with file_transfer followed by the artifact bytes named
// by the database's ticket
func (s *Session) download(ctx context.Context, resp wire.Response) (wire.Response, error) {
	var ticket model.DownloadTicket
	if err := resp.DecodeParam(0, &ticket); err != nil {
		return wire.Response{}, fmt.Errorf("decode download ticket: %w", err)
	}
	data, err := s.server.blobs.Get(ctx, ticket.BlobKey)
	if err != nil {
		return wire.Response{}, err
	}

	frame := wire.NewResponse(model.SenderLobby, wire.StatusFileTransfer, wire.MsgFileTransfer, wire.FileTransfer{
		Name:     ticket.Name,
		Version:  ticket.Version,
		FileSize: int64(len(data)),
	})
	if err := s.client.WriteWithRaw(frame, data); err != nil {
		return wire.Response{}, fatal(model.ErrTransportClosed)
	}
	return wire.Response{}, errReplied
}

// startGame brings up the instance for a room the database moved into
// play and hands each player its connection details. If the instance
// cannot start the database is told to abort the game.
func (s *Session) startGame(ctx context.Context, resp wire.Response) (wire.Response, error) {
	var room model.Room
	if err := resp.DecodeParam(0, &room); err != nil {
		return wire.Response{}, fmt.Errorf("decode room: %w", err)
	}
	var ticket model.DownloadTicket
	if err := resp.DecodeParam(1, &ticket); err != nil {
		return wire.Response{}, fmt.Errorf("decode artifact ticket: %w", err)
	}

	assignment, err := s.launch(ctx, room, ticket)
	if err != nil {
		s.logger.Error("failed to start game instance",
			slog.String("room_id", string(room.ID)),
			slog.String("error", err.Error()))
		s.abort(ctx, room.ID)
		return wire.Response{}, err
	}

	if err := s.send(resp); err != nil {
		return wire.Response{}, fatal(model.ErrTransportClosed)
	}
	for i, player := range room.Players {
		role := wire.PeerRoleClient
		if i == 0 {
			role = wire.PeerRoleHost
		}
		info := wire.P2PInfo{
			Role:        role,
			RoomID:      room.ID,
			GameHost:    assignment.Host,
			Port:        assignment.Port,
			GameKind:    room.GameKind,
			GameVersion: room.GameVersion,
			Ticket:      assignment.Tickets[player],
		}
		if err := s.server.directory.Send(model.RealmPlayer, player, info.Response()); err != nil {
			s.logger.Warn("failed to deliver game details",
				slog.String("room_id", string(room.ID)),
				slog.String("username", player),
				slog.String("error", err.Error()))
		}
	}

	s.server.publish(model.RoomEvent{
		Type:      model.EventGameStarted,
		RoomID:    room.ID,
		Room:      &room,
		Timestamp: time.Now(),
	})
	s.logger.Info("game started",
		slog.String("room_id", string(room.ID)),
		slog.String("game_kind", room.GameKind),
		slog.String("game_version", room.GameVersion),
		slog.String("port", strconv.Itoa(assignment.Port)))

	// The reply has already been written ahead of the p2p details
	return wire.Response{}, errReplied
}

func (s *Session) launch(ctx context.Context, room model.Room, ticket model.DownloadTicket) (*coordinator.Assignment, error) {
	artifact, err := s.server.blobs.Get(ctx, ticket.BlobKey)
	if err != nil {
		return nil, err
	}
	return s.server.games.Start(ctx, coordinator.StartRequest{
		RoomID:      room.ID,
		Players:     room.Players,
		GameKind:    room.GameKind,
		GameVersion: room.GameVersion,
		Artifact:    artifact,
	})
}

func (s *Session) abort(ctx context.Context, roomID model.RoomID) {
	resp, err := s.forward(ctx, wire.NewCommand(model.SenderLobby, wire.CmdGameAborted, string(roomID)))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.logger.Error("failed to abort game",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
		return
	}
	s.server.publish(model.RoomEvent{
		Type:      model.EventGameAborted,
		RoomID:    roomID,
		Reason:    model.ReasonAborted,
		Timestamp: time.Now(),
	})
}
