package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/api/response"
	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

const manifest = `{"engine":"tetris","gravity":{"dropMs":200}}`

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	app, err := NewTestApp(s.T().TempDir())
	s.Require().NoError(err)
	s.app = app
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.NoError(s.app.Close())
}

func (s *IntegrationSuite) clientConfig() client.Config {
	cfg := client.DefaultConfig(s.app.LobbyAddr())
	cfg.RequestTimeout = 2 * time.Second
	cfg.ReadyTimeout = 2 * time.Second
	cfg.DownloadTimeout = 2 * time.Second
	cfg.ConnectAttempts = 3
	cfg.ConnectInterval = 50 * time.Millisecond
	return cfg
}

func (s *IntegrationSuite) dial() *client.Client {
	c, err := client.Dial(s.ctx, s.clientConfig(), testutil.NopLogger())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

func (s *IntegrationSuite) login(realm model.Realm, username string) *client.Client {
	c := s.dial()
	s.Require().NoError(c.Register(s.ctx, realm, username, "secret"))
	_, err := c.Login(s.ctx, realm, username, "secret")
	s.Require().NoError(err)
	return c
}

func (s *IntegrationSuite) player(username string) *client.Client {
	return s.login(model.RealmPlayer, username)
}

func (s *IntegrationSuite) publish(name string) client.Published {
	dev := s.login(model.RealmDeveloper, "dev-"+name)
	published, err := dev.Upload(s.ctx, name, "falling blocks", []byte(manifest))
	s.Require().NoError(err)
	return published
}

// await returns the next notification with the given status
func (s *IntegrationSuite) await(c *client.Client, status string) wire.Response {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case resp := <-c.Events():
			if resp.Status == status {
				return resp
			}
		case <-timeout:
			s.FailNow("no notification", "status %s", status)
			return wire.Response{}
		}
	}
}

// Test: A second login for an online user is refused until logout
func (s *IntegrationSuite) TestLoginIsExclusive() {
	s.player("alice")

	again := s.dial()
	_, err := again.Login(s.ctx, model.RealmPlayer, "alice", "secret")
	s.ErrorIs(err, model.ErrAlreadyLoggedIn)

	_, err = again.Login(s.ctx, model.RealmPlayer, "alice", "wrong")
	s.ErrorIs(err, model.ErrInvalidCredentials)
}

// Test: Developer accounts live in their own realm
func (s *IntegrationSuite) TestRealmsAreSeparate() {
	s.player("alice")
	dev := s.dial()
	s.Require().NoError(dev.Register(s.ctx, model.RealmDeveloper, "alice", "other"))
	_, err := dev.Login(s.ctx, model.RealmDeveloper, "alice", "other")
	s.NoError(err)
}

// Test: Public room from creation to a full room
func (s *IntegrationSuite) TestPublicRoomFlow() {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")

	room, err := alice.CreateRoom(s.ctx, model.VisibilityPublic, "tetris")
	s.Require().NoError(err)
	s.True(room.ID.Valid())
	s.Equal(model.RoomWaiting, room.Status)

	joined, err := bob.JoinRoom(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob"}, joined.Players)
	s.Equal(model.RoomReady, joined.Status)

	update := s.await(alice, wire.StatusUpdate)
	s.Equal(string(model.EventPlayerJoined), update.Message)

	carol := s.player("carol")
	_, err = carol.JoinRoom(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomFull)

	report, err := carol.Status(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(report.Rooms, 1)
	s.Equal(room.ID, report.Rooms[0].ID)
	s.Len(report.OnlineUsers, 3)
}

// Test: A private room admits only invited players
func (s *IntegrationSuite) TestPrivateRoomInvite() {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")

	room, err := alice.CreateRoom(s.ctx, model.VisibilityPrivate, "tetris")
	s.Require().NoError(err)

	_, err = bob.JoinRoom(s.ctx, room.ID)
	s.ErrorIs(err, model.ErrRoomPrivate)

	_, err = alice.Invite(s.ctx, "bob")
	s.Require().NoError(err)
	s.await(bob, wire.StatusInvite)

	invites, err := bob.Invites(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(invites, 1)
	s.Equal("alice", invites[0].Inviter)
	s.Equal(room.ID, invites[0].RoomID)

	joined, err := bob.Accept(s.ctx, "alice", room.ID)
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob"}, joined.Players)

	invites, err = bob.Invites(s.ctx)
	s.Require().NoError(err)
	s.Empty(invites)
}

// Test: Publish, update, download, review and delete a game
func (s *IntegrationSuite) TestMarketplaceLifecycle() {
	dev := s.login(model.RealmDeveloper, "studio")
	first, err := dev.Upload(s.ctx, "tetris", "falling blocks", []byte(manifest))
	s.Require().NoError(err)
	s.Equal("tetris", first.Name)

	alice := s.player("alice")
	_, err = alice.Upload(s.ctx, "other", "nope", []byte(manifest))
	s.ErrorIs(err, model.ErrForbidden)

	second, err := dev.Update(s.ctx, "tetris", "faster blocks", []byte(`{"engine":"tetris","gravity":{"dropMs":100}}`))
	s.Require().NoError(err)
	s.NotEqual(first.Version, second.Version)

	games, err := alice.ListGames(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(games, 1)
	s.Equal("studio", games[0].Publisher)
	s.Equal(second.Version, games[0].Version)

	artifact, err := alice.Download(s.ctx, "tetris", "")
	s.Require().NoError(err)
	s.Equal(second.Version, artifact.Version)
	s.JSONEq(`{"engine":"tetris","gravity":{"dropMs":100}}`, string(artifact.Data))

	cache, err := client.OpenCache(s.T().TempDir())
	s.Require().NoError(err)
	fetched, err := alice.Ensure(s.ctx, cache, "tetris", second.Version)
	s.Require().NoError(err)
	s.True(fetched)
	fetched, err = alice.Ensure(s.ctx, cache, "tetris", second.Version)
	s.Require().NoError(err)
	s.False(fetched)

	_, err = alice.LeaveReview(s.ctx, "tetris", 4, "good fun")
	s.Require().NoError(err)
	_, err = alice.LeaveReview(s.ctx, "tetris", 9, "")
	s.ErrorIs(err, model.ErrInvalidRating)

	reviews, summary, err := alice.Reviews(s.ctx, "tetris")
	s.Require().NoError(err)
	s.Require().Len(reviews, 1)
	s.Equal(1, summary.Count)
	s.InDelta(4.0, summary.Average, 0.001)

	_, err = dev.DeleteGame(s.ctx, "tetris")
	s.Require().NoError(err)

	games, err = alice.ListGames(s.ctx)
	s.Require().NoError(err)
	s.Empty(games)
	_, err = alice.Download(s.ctx, "tetris", "")
	s.ErrorIs(err, model.ErrGameNotFound)
}

// Test: A started game runs on a real instance and a dropped player forfeits
func (s *IntegrationSuite) TestGameForfeit() {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")

	room, err := alice.CreateRoom(s.ctx, model.VisibilityPublic, "tetris")
	s.Require().NoError(err)
	_, err = bob.JoinRoom(s.ctx, room.ID)
	s.Require().NoError(err)

	_, err = alice.StartGame(s.ctx)
	s.Require().NoError(err)

	aliceInfo, err := wire.ParseP2PInfo(s.await(alice, wire.StatusP2PInfo))
	s.Require().NoError(err)
	bobInfo, err := wire.ParseP2PInfo(s.await(bob, wire.StatusP2PInfo))
	s.Require().NoError(err)
	s.Equal(wire.PeerRoleHost, aliceInfo.Role)
	s.Equal(aliceInfo.Addr(), bobInfo.Addr())
	s.Len(s.app.Lobby.Coordinator.Active(), 1)

	aliceGame, err := client.DialGame(s.ctx, s.clientConfig(), aliceInfo, testutil.NopLogger())
	s.Require().NoError(err)
	bobGame, err := client.DialGame(s.ctx, s.clientConfig(), bobInfo, testutil.NopLogger())
	s.Require().NoError(err)
	defer bobGame.Close()

	s.Require().NoError(aliceGame.Join("alice", room.ID, aliceInfo.Ticket))
	s.Require().NoError(bobGame.Join("bob", room.ID, bobInfo.Ticket))
	s.readUntil(aliceGame, wire.GameWelcome)
	s.readUntil(bobGame, wire.GameWelcome)

	s.Require().NoError(aliceGame.Ready())
	s.Require().NoError(bobGame.Ready())
	s.readUntil(bobGame, wire.GameStart)

	s.Require().NoError(aliceGame.Close())
	over := s.readUntil(bobGame, wire.GameOver)
	s.Equal("bob", over.Winner)
	s.Equal(model.ReasonForfeit, over.Reason)

	finished := s.await(bob, wire.StatusUpdate)
	for finished.Message != string(model.EventGameFinished) {
		finished = s.await(bob, wire.StatusUpdate)
	}
	s.Eventually(func() bool {
		return len(s.app.Lobby.Coordinator.Active()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

// Test: Dropping only the lobby connection mid-game forfeits the match
// with the database's verdict
func (s *IntegrationSuite) TestLobbyDisconnectForfeitsGame() {
	s.publish("tetris")
	alice := s.player("alice")
	bob := s.player("bob")

	room, err := alice.CreateRoom(s.ctx, model.VisibilityPublic, "tetris")
	s.Require().NoError(err)
	_, err = bob.JoinRoom(s.ctx, room.ID)
	s.Require().NoError(err)
	_, err = alice.StartGame(s.ctx)
	s.Require().NoError(err)

	aliceInfo, err := wire.ParseP2PInfo(s.await(alice, wire.StatusP2PInfo))
	s.Require().NoError(err)
	bobInfo, err := wire.ParseP2PInfo(s.await(bob, wire.StatusP2PInfo))
	s.Require().NoError(err)

	aliceGame, err := client.DialGame(s.ctx, s.clientConfig(), aliceInfo, testutil.NopLogger())
	s.Require().NoError(err)
	defer aliceGame.Close()
	bobGame, err := client.DialGame(s.ctx, s.clientConfig(), bobInfo, testutil.NopLogger())
	s.Require().NoError(err)
	defer bobGame.Close()

	s.Require().NoError(aliceGame.Join("alice", room.ID, aliceInfo.Ticket))
	s.Require().NoError(bobGame.Join("bob", room.ID, bobInfo.Ticket))
	s.readUntil(aliceGame, wire.GameWelcome)
	s.readUntil(bobGame, wire.GameWelcome)
	s.Require().NoError(aliceGame.Ready())
	s.Require().NoError(bobGame.Ready())
	s.readUntil(bobGame, wire.GameStart)

	s.Require().NoError(alice.Close())

	over := s.readUntil(bobGame, wire.GameOver)
	s.Equal("bob", over.Winner)
	s.Equal(model.ReasonForfeit, over.Reason)

	aliceOver := s.readUntil(aliceGame, wire.GameOver)
	s.Equal("bob", aliceOver.Winner)

	history := s.app.Database.Rooms.History()
	s.Require().NotEmpty(history)
	s.Equal("bob", history[len(history)-1].Results.Winner)
	s.Eventually(func() bool {
		return len(s.app.Lobby.Coordinator.Active()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *IntegrationSuite) readUntil(g *client.GameConn, typ string) wire.GameMessage {
	for {
		msg, err := g.Read()
		s.Require().NoError(err)
		if msg.Type == typ {
			return msg
		}
		s.Require().NotEqual(wire.GameError, msg.Type, msg.Message)
	}
}

// Test: The status API reports the running lobby
func (s *IntegrationSuite) TestStatusAPIHealth() {
	s.player("alice")

	srv := httptest.NewServer(s.app.Lobby.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var health response.Health
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&health))
	s.Equal("ok", health.Status)
	s.Equal(1, health.Sessions)
}
