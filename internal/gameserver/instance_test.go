package gameserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/games"
	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/ticket"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

const waitTimeout = 2 * time.Second

// gameClient is the client end of a piped connection. Every received
// message is collected so the instance never sees a slow reader.
type gameClient struct {
	codec *wire.Codec
	msgs  chan wire.GameMessage
	seq   int64
}

func (c *gameClient) send(msg wire.GameMessage) error {
	return c.codec.Write(msg)
}

func (c *gameClient) input(action tetris.Action) error {
	c.seq++
	return c.send(wire.GameMessage{Type: wire.GameInput, Seq: c.seq, Action: string(action)})
}

// recorder collects what an instance hands its observer
type recorder struct {
	mu   sync.Mutex
	msgs []wire.GameMessage
}

func (r *recorder) observe(msg wire.GameMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) seen() []wire.GameMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.GameMessage(nil), r.msgs...)
}

type InstanceSuite struct {
	suite.Suite
	cancel   context.CancelFunc
	instance *Instance
	results  chan Result
	observed *recorder
}

func TestInstanceSuite(t *testing.T) {
	suite.Run(t, new(InstanceSuite))
}

func (s *InstanceSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.instance != nil {
		select {
		case <-s.instance.Done():
		case <-time.After(waitTimeout):
			s.Fail("instance still running after the test")
		}
	}
	s.cancel, s.instance, s.results, s.observed = nil, nil, nil, nil
}

func (s *InstanceSuite) start(mutate func(*Config)) {
	observed := &recorder{}
	cfg := Config{
		RoomID:      "123456",
		Players:     []string{"alice", "bob"},
		Seed:        42,
		Manifest:    games.DefaultManifest(games.EngineTetris, 10000, tetris.BagRestrictedFirst),
		JoinTimeout: 5 * time.Second,
		Observer:    observed.observe,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	instance, err := New(cfg, testutil.NopLogger())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 1)
	go func() {
		results <- instance.Run(ctx)
	}()
	s.instance, s.cancel, s.results, s.observed = instance, cancel, results, observed
}

func (s *InstanceSuite) connect() *gameClient {
	server, client := net.Pipe()
	s.instance.Attach(NewTCPConn(server, 0))

	c := &gameClient{
		codec: wire.NewCodec(client, 0),
		msgs:  make(chan wire.GameMessage, 1024),
	}
	go func() {
		defer close(c.msgs)
		for {
			var msg wire.GameMessage
			if err := c.codec.Read(&msg); err != nil {
				return
			}
			c.msgs <- msg
		}
	}()
	s.T().Cleanup(func() { _ = c.codec.Close() })
	return c
}

// expect skips messages until one of type typ arrives
func (s *InstanceSuite) expect(c *gameClient, typ string) wire.GameMessage {
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg, ok := <-c.msgs:
			s.Require().True(ok, "connection closed while waiting for %s", typ)
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			s.FailNow("timed out waiting for " + typ)
		}
	}
}

func (s *InstanceSuite) join(name string) *gameClient {
	c := s.connect()
	s.Require().NoError(c.send(wire.GameMessage{Type: wire.GameJoin, Username: name}))
	welcome := s.expect(c, wire.GameWelcome)
	s.Require().Equal(wire.RolePlayer, welcome.Role)
	return c
}

func (s *InstanceSuite) startGame() (*gameClient, *gameClient) {
	alice := s.join("alice")
	bob := s.join("bob")
	s.Require().NoError(alice.send(wire.GameMessage{Type: wire.GameReady}))
	s.Require().NoError(bob.send(wire.GameMessage{Type: wire.GameReady}))
	s.expect(alice, wire.GameStart)
	s.expect(bob, wire.GameStart)
	return alice, bob
}

func (s *InstanceSuite) result() Result {
	select {
	case res := <-s.results:
		return res
	case <-time.After(waitTimeout):
		s.FailNow("instance did not finish")
		return Result{}
	}
}

// Handshake tests

func (s *InstanceSuite) TestWelcomeCarriesSeedAndPlan() {
	s.start(nil)
	c := s.connect()
	s.Require().NoError(c.send(wire.GameMessage{Type: wire.GameJoin, Username: "alice"}))

	welcome := s.expect(c, wire.GameWelcome)
	s.Equal(int64(42), welcome.Seed)
	s.Equal(string(tetris.BagRestrictedFirst), welcome.BagRule)
	s.Require().NotNil(welcome.GravityPlan)
	s.Equal(10000, welcome.GravityPlan.DropMs)
}

func (s *InstanceSuite) TestStrangerIsRejected() {
	s.start(nil)
	c := s.connect()
	s.Require().NoError(c.send(wire.GameMessage{Type: wire.GameJoin, Username: "mallory"}))

	msg := s.expect(c, wire.GameError)
	s.Contains(msg.Message, "not a player")
}

func (s *InstanceSuite) TestTicketRequired() {
	issuer := ticket.New("secret", time.Minute, clock.New())
	s.start(func(cfg *Config) { cfg.Tickets = issuer })

	c := s.connect()
	s.Require().NoError(c.send(wire.GameMessage{Type: wire.GameJoin, Username: "alice", Ticket: "forged"}))
	s.expect(c, wire.GameError)

	token, err := issuer.Issue("alice", "123456")
	s.Require().NoError(err)
	c = s.connect()
	s.Require().NoError(c.send(wire.GameMessage{Type: wire.GameJoin, Username: "alice", Ticket: token}))
	s.expect(c, wire.GameWelcome)
}

func (s *InstanceSuite) TestMalformedFrameIsDiscarded() {
	s.start(nil)
	server, client := net.Pipe()
	s.instance.Attach(NewTCPConn(server, 0))
	codec := wire.NewCodec(client, 0)
	defer codec.Close()

	go func() {
		_ = wire.WriteFrame(client, []byte("not json"))
		_ = codec.Write(wire.GameMessage{Type: wire.GameJoin, Username: "alice"})
	}()

	var msg wire.GameMessage
	s.Require().NoError(codec.Read(&msg))
	s.Equal(wire.GameWelcome, msg.Type)
}

// Match tests

func (s *InstanceSuite) TestStartSendsInitialSnapshots() {
	s.start(nil)
	alice, _ := s.startGame()

	first := s.expect(alice, wire.GameSnapshot)
	second := s.expect(alice, wire.GameSnapshot)
	s.Equal("alice", first.Username)
	s.Equal("bob", second.Username)
	s.NotEmpty(first.BoardRLE)
	s.Len(first.Next, tetris.PreviewSize)
	s.Equal(first.Next, second.Next, "both players deal from the same seed")
}

func (s *InstanceSuite) TestInputProducesSnapshot() {
	s.start(nil)
	alice, bob := s.startGame()
	s.expect(bob, wire.GameSnapshot)
	s.expect(bob, wire.GameSnapshot)

	s.Require().NoError(alice.input(tetris.ActionSoftDrop))

	snap := s.expect(bob, wire.GameSnapshot)
	s.Equal("alice", snap.Username)
	s.Require().NotNil(snap.Active)
	s.Equal(1, snap.Active.Y)
}

func (s *InstanceSuite) TestGravityTicks() {
	s.start(func(cfg *Config) { cfg.Manifest.Gravity.DropMs = 10 })
	alice, _ := s.startGame()
	s.expect(alice, wire.GameSnapshot)
	s.expect(alice, wire.GameSnapshot)

	snap := s.expect(alice, wire.GameSnapshot)
	s.Require().NotNil(snap.Active)
	s.Equal(1, snap.Active.Y)
}

func (s *InstanceSuite) TestGridEncoding() {
	s.start(func(cfg *Config) { cfg.Encoding = EncodingGrid })
	alice, _ := s.startGame()

	snap := s.expect(alice, wire.GameSnapshot)
	s.Empty(snap.BoardRLE)
	s.Len(snap.Board, tetris.Height)
}

func (s *InstanceSuite) TestTopOutEndsMatch() {
	s.start(nil)
	alice, bob := s.startGame()

	for i := 0; i < 100; i++ {
		if err := alice.input(tetris.ActionHardDrop); err != nil {
			break
		}
	}

	over := s.expect(bob, wire.GameOver)
	s.Equal("bob", over.Winner)
	s.Equal(model.ReasonToppedOut, over.Reason)
	s.Len(over.FinalScores, 2)

	res := s.result()
	s.Equal("bob", res.Winner)
	s.Equal(model.ReasonToppedOut, res.Reason)
	s.Equal(model.RoomID("123456"), res.RoomID)
}

func (s *InstanceSuite) TestDisconnectIsForfeit() {
	s.start(func(cfg *Config) { cfg.Players = []string{"carol", "dave"} })
	carol := s.join("carol")
	dave := s.join("dave")
	s.Require().NoError(carol.send(wire.GameMessage{Type: wire.GameReady}))
	s.Require().NoError(dave.send(wire.GameMessage{Type: wire.GameReady}))
	s.expect(dave, wire.GameStart)

	s.Require().NoError(carol.codec.Close())

	over := s.expect(dave, wire.GameOver)
	s.Equal("dave", over.Winner)
	s.Equal(model.ReasonForfeit, over.Reason)
	s.Equal(model.ReasonForfeit, s.result().Reason)
}

func (s *InstanceSuite) TestJoinDeadlineAborts() {
	s.start(func(cfg *Config) { cfg.JoinTimeout = 300 * time.Millisecond })
	alice := s.join("alice")

	over := s.expect(alice, wire.GameOver)
	s.Equal(model.WinnerNone, over.Winner)
	s.Equal(model.ReasonAborted, over.Reason)
	s.Equal(model.ReasonAborted, s.result().Reason)
}

func (s *InstanceSuite) TestCancelAborts() {
	s.start(nil)
	alice, _ := s.startGame()

	s.cancel()

	over := s.expect(alice, wire.GameOver)
	s.Equal(model.ReasonAborted, over.Reason)
	<-s.instance.Done()
}

func (s *InstanceSuite) TestWatcherSeesMatch() {
	s.start(nil)
	watcher := s.connect()
	s.Require().NoError(watcher.send(wire.GameMessage{Type: wire.GameWatch, Username: "eve", RoomID: "123456"}))
	s.Equal(wire.RoleWatcher, s.expect(watcher, wire.GameWelcome).Role)

	alice, _ := s.startGame()
	s.expect(watcher, wire.GameStart)
	s.expect(watcher, wire.GameSnapshot)

	s.Require().NoError(watcher.codec.Close())
	s.Require().NoError(alice.input(tetris.ActionLeft))
	snap := s.expect(alice, wire.GameSnapshot)
	s.Equal("alice", snap.Username)
}

func (s *InstanceSuite) TestObserverGetsBroadcasts() {
	s.start(nil)
	s.startGame()

	s.Eventually(func() bool {
		return len(s.observed.seen()) >= 3
	}, waitTimeout, 10*time.Millisecond)

	seen := s.observed.seen()
	s.Equal(wire.GameStart, seen[0].Type)
	s.Equal(wire.GameSnapshot, seen[1].Type)
}

func (s *InstanceSuite) TestEndUsesGivenVerdict() {
	s.start(nil)
	alice, bob := s.startGame()

	s.instance.End("bob", model.ReasonForfeit)

	over := s.expect(alice, wire.GameOver)
	s.Equal("bob", over.Winner)
	s.Equal(model.ReasonForfeit, over.Reason)
	s.Equal("bob", s.expect(bob, wire.GameOver).Winner)

	res := s.result()
	s.Equal("bob", res.Winner)
	s.Equal(model.ReasonForfeit, res.Reason)

	s.instance.End("alice", model.ReasonDeleted)
}

func (s *InstanceSuite) TestEachRunReportsToItsOwnChannel() {
	s.start(func(cfg *Config) { cfg.JoinTimeout = 50 * time.Millisecond })
	first := s.results
	s.Equal(model.ReasonAborted, s.result().Reason)

	s.start(nil)
	s.NotEqual(first, s.results)
	s.cancel()
	s.Equal(model.ReasonAborted, s.result().Reason)
	select {
	case res := <-first:
		s.Failf("stale result", "%+v", res)
	default:
	}
}

func (s *InstanceSuite) TestTempoShortensTicks() {
	observed := &recorder{}
	manifest := games.DefaultManifest(games.EngineTetris, 1000, tetris.BagRestrictedFirst)
	manifest.Tempo = games.Tempo{EveryLines: 1, StepMs: 100, MinMs: 200}
	in, err := New(Config{
		RoomID:   "123456",
		Players:  []string{"alice", "bob"},
		Manifest: manifest,
		Observer: observed.observe,
	}, testutil.NopLogger())
	s.Require().NoError(err)

	in.applyTempo(0)
	s.Empty(observed.seen())

	in.applyTempo(3)
	in.applyTempo(3)
	in.applyTempo(50)

	seen := observed.seen()
	s.Require().Len(seen, 2)
	s.Equal(wire.GameTempo, seen[0].Type)
	s.Equal(700, seen[0].DropMs)
	s.Equal(200, seen[1].DropMs)
	s.Equal(200, in.dropMs)
}

func TestBestOf(t *testing.T) {
	tests := []struct {
		name string
		a, b model.PlayerScore
		want int
	}{
		{name: "higher score wins", a: model.PlayerScore{Score: 100, Lines: 9}, b: model.PlayerScore{Score: 200, Lines: 1}, want: 1},
		{name: "first seat higher score", a: model.PlayerScore{Score: 300}, b: model.PlayerScore{Score: 200, Lines: 5}, want: 0},
		{name: "lines break a score tie", a: model.PlayerScore{Score: 100, Lines: 1}, b: model.PlayerScore{Score: 100, Lines: 2}, want: 1},
		{name: "first seat more lines", a: model.PlayerScore{Score: 100, Lines: 4}, b: model.PlayerScore{Score: 100, Lines: 2}, want: 0},
		{name: "full tie goes to lower seat", a: model.PlayerScore{Score: 100, Lines: 2}, b: model.PlayerScore{Score: 100, Lines: 2}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bestOf(tt.a, tt.b))
		})
	}
}

func (s *InstanceSuite) TestNewRequiresTwoPlayers() {
	_, err := New(Config{Players: []string{"alice"}}, testutil.NopLogger())
	s.ErrorIs(err, model.ErrBadRequest)
}
