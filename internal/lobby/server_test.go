package lobby

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/blobstore/local"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/database"
	"github.com/mcoot/gamelobby-go/internal/dependencies/mocks"
	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/services/auth"
	"github.com/mcoot/gamelobby-go/internal/services/marketplace"
	"github.com/mcoot/gamelobby-go/internal/services/presence"
	"github.com/mcoot/gamelobby-go/internal/services/reviews"
	"github.com/mcoot/gamelobby-go/internal/services/rooms"
	"github.com/mcoot/gamelobby-go/internal/storage/memory"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// fakeGames records instance requests instead of starting instances
type fakeGames struct {
	mu      sync.Mutex
	started []coordinator.StartRequest
	ended   []model.GameEnding
	err     error
}

func (g *fakeGames) Start(_ context.Context, req coordinator.StartRequest) (*coordinator.Assignment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.started = append(g.started, req)
	tickets := make(map[string]string, len(req.Players))
	for _, p := range req.Players {
		tickets[p] = "ticket-" + p
	}
	return &coordinator.Assignment{RoomID: req.RoomID, Host: "127.0.0.1", Port: 9100, Tickets: tickets}, nil
}

func (g *fakeGames) End(roomID model.RoomID, winner, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ended = append(g.ended, model.GameEnding{RoomID: roomID, Winner: winner, Reason: reason})
	return nil
}

func (g *fakeGames) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGames) requests() []coordinator.StartRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]coordinator.StartRequest(nil), g.started...)
}

func (g *fakeGames) endings() []model.GameEnding {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.GameEnding(nil), g.ended...)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []model.RoomEvent
}

func (r *recordedEvents) PublishRoomEvent(event model.RoomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type ServerSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc

	blobs   *local.Store
	db      *database.Server
	games   *fakeGames
	events  *recordedEvents
	control *ControlLink
	lobby   *Server
	addr    string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	logger := testutil.NopLogger()

	storage := memory.New()
	blobs, err := local.New(s.T().TempDir())
	s.Require().NoError(err)
	s.blobs = blobs
	clock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	random := mocks.NewMockRandom()

	authService, err := auth.New(storage, clock, auth.Config{HashFunc: auth.HashSHA256})
	s.Require().NoError(err)
	backend := database.New(
		authService,
		presence.New(model.RealmPlayer, clock),
		presence.New(model.RealmDeveloper, clock),
		rooms.New(clock, random, rooms.DefaultConfig()),
		marketplace.New(storage, blobs, random, clock, logger),
		reviews.New(storage, clock, logger),
		storage,
		clock,
		logger,
	)
	s.db = database.NewServer(backend, database.DefaultServerConfig(), logger)
	dbListener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	go func() { _ = s.db.Serve(s.ctx, dbListener) }()

	cfg := DefaultConfig()
	cfg.DatabaseAddr = dbListener.Addr().String()
	cfg.UploadTimeout = 500 * time.Millisecond
	cfg.CloseAckTimeout = time.Second
	cfg.MaxArtifactSize = 1024

	s.games = &fakeGames{}
	s.events = &recordedEvents{}
	s.control = NewControlLink(DefaultControlConfig(cfg.DatabaseAddr), logger)
	s.lobby = NewServer(cfg, s.games, blobs, mocks.NewMockRandom(), s.events, s.control, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.addr = ln.Addr().String()
	go func() { _ = s.lobby.Serve(s.ctx, ln) }()
}

func (s *ServerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.NoError(s.lobby.Shutdown(ctx))
	s.NoError(s.control.Close())
	s.NoError(s.db.Shutdown(ctx))
	s.cancel()
}

type client struct {
	s      *ServerSuite
	sender string
	codec  *wire.Codec
}

func (s *ServerSuite) dial(sender string) *client {
	conn, err := net.Dial("tcp", s.addr)
	s.Require().NoError(err)
	c := &client{s: s, sender: sender, codec: wire.NewCodec(conn, 0)}
	s.T().Cleanup(func() { _ = c.codec.Close() })
	return c
}

func (c *client) send(command string, params ...any) {
	c.s.Require().NoError(c.codec.Write(wire.NewCommand(c.sender, command, params...)))
}

func (c *client) read() wire.Response {
	c.s.Require().NoError(c.codec.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var resp wire.Response
	c.s.Require().NoError(c.codec.Read(&resp))
	return resp
}

// await reads frames until one with status arrives
func (c *client) await(status string) wire.Response {
	for i := 0; i < 20; i++ {
		resp := c.read()
		if resp.Status == status {
			return resp
		}
	}
	c.s.FailNow("no frame with status " + status)
	return wire.Response{}
}

// call sends a command and returns the first reply, skipping notifications
func (c *client) call(command string, params ...any) wire.Response {
	c.send(command, params...)
	for i := 0; i < 20; i++ {
		resp := c.read()
		switch resp.Status {
		case wire.StatusSuccess, wire.StatusError, wire.StatusStatus, wire.StatusReady:
			return resp
		}
	}
	c.s.FailNow("no reply to " + command)
	return wire.Response{}
}

func (c *client) ok(command string, params ...any) wire.Response {
	resp := c.call(command, params...)
	c.s.Require().NoError(resp.Err(), "%s failed: %s", command, resp.Message)
	return resp
}

func (c *client) fails(target error, command string, params ...any) wire.Response {
	resp := c.call(command, params...)
	c.s.Require().Error(resp.Err(), "%s unexpectedly succeeded", command)
	c.s.ErrorIs(resp.Err(), target)
	return resp
}

func (s *ServerSuite) player(name string) *client {
	c := s.dial(model.SenderClient)
	c.ok(wire.CmdRegister, name, "pw")
	c.ok(wire.CmdLogin, name, "pw")
	return c
}

func (s *ServerSuite) developer(name string) *client {
	c := s.dial(model.SenderGameDev)
	c.ok(wire.CmdRegister, name, "pw")
	c.ok(wire.CmdLogin, name, "pw")
	return c
}

func (c *client) upload(command, name string, data []byte) wire.Response {
	ready := c.call(command, name, "a game")
	c.s.Require().Equal(wire.StatusReady, ready.Status)
	c.s.Require().NoError(c.codec.Write(wire.UploadHeader{FileSize: int64(len(data))}))
	c.s.Require().NoError(c.codec.WriteRaw(data))
	return c.read()
}

func (s *ServerSuite) publish(name string) {
	dev := s.developer("dev-" + name)
	resp := dev.upload(wire.CmdUploadGame, name, []byte(`{"engine":"tetris"}`))
	s.Require().NoError(resp.Err())
}

func decodeRoom(s *ServerSuite, resp wire.Response) model.Room {
	var room model.Room
	s.Require().NoError(resp.DecodeParam(0, &room))
	return room
}

// readyRoom seats alice as host and bob as guest in a public room
func (s *ServerSuite) readyRoom() (*client, *client, model.Room) {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")
	room := decodeRoom(s, alice.ok(wire.CmdCreateRoom, "public", "tetris"))
	bob.ok(wire.CmdJoinRoom, string(room.ID))
	alice.await(wire.StatusUpdate)
	return alice, bob, room
}

func (s *ServerSuite) TestLoginRegistersSession() {
	s.player("alice")

	s.Eventually(func() bool {
		_, ok := s.lobby.Directory().Lookup(model.RealmPlayer, "alice")
		return ok
	}, time.Second, 10*time.Millisecond)
	s.Equal([]string{"alice"}, s.lobby.Directory().Online(model.RealmPlayer))
}

func (s *ServerSuite) TestLoginRecordsClientAddress() {
	c := s.dial(model.SenderClient)
	c.ok(wire.CmdRegister, "alice", "pw")
	resp := c.ok(wire.CmdLogin, "alice", "pw", "1.2.3.4", "1")

	var session model.Session
	s.Require().NoError(resp.DecodeParam(0, &session))
	host, _, err := net.SplitHostPort(session.Address)
	s.Require().NoError(err)
	s.Equal("127.0.0.1", host)
}

func (s *ServerSuite) TestSecondLoginIsRejected() {
	s.player("alice")
	other := s.dial(model.SenderClient)
	other.fails(model.ErrAlreadyLoggedIn, wire.CmdLogin, "alice", "pw")
}

func (s *ServerSuite) TestReservedCommandsAreForbidden() {
	c := s.player("alice")
	c.fails(model.ErrForbidden, wire.CmdGameEnded, "000001", model.GameResults{})
	c.fails(model.ErrForbidden, wire.CmdServerClosed, "bob", "player")

	lobby := s.dial(model.SenderLobby)
	lobby.fails(model.ErrForbidden, wire.CmdShowStatus)
}

func (s *ServerSuite) TestMalformedFrameKeepsConnection() {
	c := s.dial(model.SenderClient)
	s.Require().NoError(wire.WriteFrame(rawConn{c.codec}, []byte("{not json")))
	resp := c.read()
	s.ErrorIs(resp.Err(), model.ErrBadRequest)

	c.ok(wire.CmdRegister, "alice", "pw")
}

func (s *ServerSuite) TestInviteIsRelayed() {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")
	room := decodeRoom(s, alice.ok(wire.CmdCreateRoom, "private", "tetris"))

	alice.ok(wire.CmdInvitePlayer, "bob", string(room.ID))
	invite := bob.await(wire.StatusInvite)
	s.Equal(string(model.EventInviteReceived), invite.Message)
	s.Empty(invite.Notify)

	bob.ok(wire.CmdAccept, "alice", string(room.ID))
	joined := alice.await(wire.StatusUpdate)
	s.Equal(string(model.EventPlayerJoined), joined.Message)
	s.Contains(s.events.types(), model.EventPlayerJoined)
}

func (s *ServerSuite) TestUploadAndDownload() {
	dev := s.developer("studio")
	artifact := []byte(`{"engine":"tetris","gravity":{"dropMs":500}}`)

	resp := dev.upload(wire.CmdUploadGame, "Tetris", artifact)
	s.Require().NoError(resp.Err())
	s.Equal(wire.MsgUploadSuccess, resp.Message)
	version := resp.Param(1)
	s.NotEmpty(version)

	alice := s.player("alice")
	alice.send(wire.CmdDownloadGame, "Tetris")
	frame := alice.read()
	s.Require().Equal(wire.StatusFileTransfer, frame.Status)
	var transfer wire.FileTransfer
	s.Require().NoError(frame.DecodeParam(0, &transfer))
	s.Equal("Tetris", transfer.Name)
	s.Equal(version, transfer.Version)
	s.Equal(int64(len(artifact)), transfer.FileSize)

	data, err := alice.codec.ReadRaw(transfer.FileSize)
	s.Require().NoError(err)
	s.Equal(artifact, data)

	alice.ok(wire.CmdShowStatus)
}

func (s *ServerSuite) TestUploadRequiresDeveloper() {
	alice := s.player("alice")
	alice.fails(model.ErrForbidden, wire.CmdUploadGame, "Tetris", "desc")

	anon := s.dial(model.SenderGameDev)
	anon.fails(model.ErrAuthRequired, wire.CmdUploadGame, "Tetris", "desc")
}

func (s *ServerSuite) TestUploadTimeoutClosesConnection() {
	dev := s.developer("studio")
	ready := dev.call(wire.CmdUploadGame, "Tetris", "desc")
	s.Require().Equal(wire.StatusReady, ready.Status)

	resp := dev.read()
	s.ErrorIs(resp.Err(), model.ErrTransferTimeout)

	var next wire.Response
	s.Require().NoError(dev.codec.SetReadDeadline(time.Now().Add(2 * time.Second)))
	s.Error(dev.codec.Read(&next))
}

func (s *ServerSuite) TestOversizeArtifactIsRejected() {
	dev := s.developer("studio")
	ready := dev.call(wire.CmdUploadGame, "Tetris", "desc")
	s.Require().Equal(wire.StatusReady, ready.Status)
	s.Require().NoError(dev.codec.Write(wire.UploadHeader{FileSize: 4096}))

	resp := dev.read()
	s.ErrorIs(resp.Err(), model.ErrArtifactTooBig)
}

func (s *ServerSuite) TestRejectedUploadRemovesBlob() {
	s.publish("tetris")
	rival := s.developer("rival")
	resp := rival.upload(wire.CmdUploadGame, "tetris", []byte("x"))
	s.Require().Error(resp.Err())

	_, err := s.blobs.Get(context.Background(), "tetris/00000000-0000-4000-8000-000000000002.bin")
	s.Error(err)
}

func (s *ServerSuite) TestStartGameSendsConnectionDetails() {
	alice, bob, room := s.readyRoom()

	resp := alice.ok(wire.CmdStartGame)
	s.Equal(wire.MsgStartGameSuccess, resp.Message)

	hostInfo, err := wire.ParseP2PInfo(alice.await(wire.StatusP2PInfo))
	s.Require().NoError(err)
	s.Equal(wire.PeerRoleHost, hostInfo.Role)
	s.Equal(room.ID, hostInfo.RoomID)
	s.Equal("127.0.0.1:9100", hostInfo.Addr())
	s.Equal("ticket-alice", hostInfo.Ticket)

	guestInfo, err := wire.ParseP2PInfo(bob.await(wire.StatusP2PInfo))
	s.Require().NoError(err)
	s.Equal(wire.PeerRoleClient, guestInfo.Role)
	s.Equal("ticket-bob", guestInfo.Ticket)

	requests := s.games.requests()
	s.Require().Len(requests, 1)
	s.Equal([]string{"alice", "bob"}, requests[0].Players)
	s.JSONEq(`{"engine":"tetris"}`, string(requests[0].Artifact))
	s.Contains(s.events.types(), model.EventGameStarted)
}

func (s *ServerSuite) TestFailedStartAbortsGame() {
	alice, _, room := s.readyRoom()
	s.games.fail(model.ErrNoPortAvailable)

	alice.fails(model.ErrNoPortAvailable, wire.CmdStartGame)

	status := alice.ok(wire.CmdShowStatus)
	var report model.StatusReport
	s.Require().NoError(status.DecodeParam(0, &report))
	s.Require().Len(report.Rooms, 1)
	s.Equal(room.ID, report.Rooms[0].ID)
	s.Equal(model.RoomReady, report.Rooms[0].Status)
}

func (s *ServerSuite) TestReportGameEndNotifiesPlayers() {
	alice, bob, room := s.readyRoom()
	alice.ok(wire.CmdStartGame)
	alice.await(wire.StatusP2PInfo)
	bob.await(wire.StatusP2PInfo)

	s.lobby.ReportGameEnd(gameserver.Result{
		RoomID: room.ID,
		Winner: "bob",
		Reason: model.ReasonToppedOut,
	})

	finished := alice.await(wire.StatusUpdate)
	s.Equal(string(model.EventGameFinished), finished.Message)
	bob.await(wire.StatusUpdate)

	alice.ok(wire.CmdCreateRoom, "public", "tetris")
}

func (s *ServerSuite) TestDisconnectReleasesPlayer() {
	alice, bob, _ := s.readyRoom()
	s.Require().NoError(bob.codec.Close())

	left := alice.await(wire.StatusUpdate)
	s.Equal(string(model.EventPlayerLeft), left.Message)

	s.Eventually(func() bool {
		_, ok := s.lobby.Directory().Lookup(model.RealmPlayer, "bob")
		return !ok
	}, time.Second, 10*time.Millisecond)

	again := s.dial(model.SenderClient)
	again.ok(wire.CmdLogin, "bob", "pw")
}

func (s *ServerSuite) TestDisconnectDuringGameEndsInstanceAsForfeit() {
	alice, bob, room := s.readyRoom()
	alice.ok(wire.CmdStartGame)
	bob.await(wire.StatusP2PInfo)

	s.Require().NoError(bob.codec.Close())

	finished := alice.await(wire.StatusUpdate)
	s.Equal(string(model.EventGameFinished), finished.Message)
	want := model.GameEnding{RoomID: room.ID, Winner: "alice", Reason: model.ReasonForfeit}
	s.Eventually(func() bool {
		ended := s.games.endings()
		return len(ended) == 1 && ended[0] == want
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServerSuite) TestLogoutEndsForfeitedGame() {
	alice, bob, room := s.readyRoom()
	alice.ok(wire.CmdStartGame)
	bob.await(wire.StatusP2PInfo)

	bob.ok(wire.CmdLogout)
	s.Equal([]model.GameEnding{{RoomID: room.ID, Winner: "alice", Reason: model.ReasonForfeit}}, s.games.endings())

	_, ok := s.lobby.Directory().Lookup(model.RealmPlayer, "bob")
	s.False(ok)
}

func (s *ServerSuite) TestDatabaseUnavailable() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	deadAddr := ln.Addr().String()
	s.Require().NoError(ln.Close())

	cfg := DefaultConfig()
	cfg.DatabaseAddr = deadAddr
	cfg.DialTimeout = 500 * time.Millisecond
	orphan := NewServer(cfg, s.games, s.blobs, mocks.NewMockRandom(), nil, nil, testutil.NopLogger())

	server, conn := net.Pipe()
	go orphan.ServeConn(s.ctx, server)

	codec := wire.NewCodec(conn, 0)
	s.Require().NoError(codec.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var resp wire.Response
	s.Require().NoError(codec.Read(&resp))
	s.True(errors.Is(resp.Err(), model.ErrDownstreamUnavailable))
	_ = codec.Close()
}

// rawConn exposes a codec as an io.Writer for hand-built frames
type rawConn struct {
	codec *wire.Codec
}

func (r rawConn) Write(p []byte) (int, error) {
	if err := r.codec.WriteRaw(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
