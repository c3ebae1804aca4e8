// Package coordinator brings game instances up and down for rooms.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/games"
	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/ticket"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Config holds configuration for the coordinator
type Config struct {
	// ListenHost is the interface instances listen on
	ListenHost string
	// AdvertiseHost is the game_host sent to clients
	AdvertiseHost string
	// PortMin and PortMax bound instance ports. A PortMin of 0 lets the
	// system choose any free port.
	PortMin int
	PortMax int

	JoinTimeout  time.Duration
	MaxFrameSize int
	Encoding     string
	DropMs       int
	BagRule      tetris.BagRule
}

// DefaultConfig returns default coordinator configuration
func DefaultConfig() Config {
	return Config{
		ListenHost:    "0.0.0.0",
		AdvertiseHost: "127.0.0.1",
		PortMin:       9100,
		PortMax:       9199,
		JoinTimeout:   30 * time.Second,
		MaxFrameSize:  wire.DefaultMaxFrameSize,
		Encoding:      gameserver.EncodingRLE,
		DropMs:        1000,
		BagRule:       tetris.BagRestrictedFirst,
	}
}

// StartRequest asks for an instance for a room about to play
type StartRequest struct {
	RoomID      model.RoomID
	Players     []string
	GameKind    string
	GameVersion string
	// Artifact is the bound version's bytes, read as an engine manifest
	Artifact []byte
}

// Assignment tells players where their instance is
type Assignment struct {
	RoomID  model.RoomID
	Host    string
	Port    int
	Engine  string
	Seed    int64
	Tickets map[string]string
}

// Info describes a running instance
type Info struct {
	RoomID    model.RoomID `json:"room_id"`
	Port      int          `json:"port"`
	Players   []string     `json:"players"`
	GameKind  string       `json:"game_kind"`
	StartedAt time.Time    `json:"started_at"`
}

type running struct {
	info     Info
	instance *gameserver.Instance
	listener net.Listener
	cancel   context.CancelFunc
	stopped  bool
}

// Coordinator owns the port range and the instances bound to rooms
type Coordinator struct {
	cfg     Config
	random  random.Random
	tickets *ticket.Issuer
	logger  *slog.Logger

	mu       sync.Mutex
	ports    map[int]bool
	games    map[model.RoomID]*running
	onEnd    func(gameserver.Result)
	observer func(model.RoomID, wire.GameMessage)

	wg sync.WaitGroup
}

// New creates a coordinator
func New(cfg Config, random random.Random, tickets *ticket.Issuer, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		random:  random,
		tickets: tickets,
		logger:  logger.With(slog.String("component", "coordinator")),
		ports:   make(map[int]bool),
		games:   make(map[model.RoomID]*running),
	}
}

// OnGameEnd registers the callback run when an instance finishes on its
// own. Instances ended through End do not report.
func (c *Coordinator) OnGameEnd(fn func(gameserver.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnd = fn
}

// SetObserver registers a sink for every message an instance broadcasts
func (c *Coordinator) SetObserver(fn func(model.RoomID, wire.GameMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Start brings up an instance for req and returns where to reach it
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (*Assignment, error) {
	defaults := games.DefaultManifest(req.GameKind, c.cfg.DropMs, c.cfg.BagRule)
	manifest := games.ParseManifest(req.GameKind, req.Artifact, defaults)
	if !games.KnownEngine(manifest.Engine) {
		return nil, fmt.Errorf("%w: no engine %q", model.ErrUnknownGame, manifest.Engine)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.games[req.RoomID]; ok {
		return nil, model.ErrInstanceExists
	}

	listener, port, err := c.listenLocked()
	if err != nil {
		return nil, err
	}

	seed := c.random.Seed()
	roomID := req.RoomID
	instance, err := gameserver.New(gameserver.Config{
		RoomID:      roomID,
		Players:     req.Players,
		Seed:        seed,
		Manifest:    manifest,
		JoinTimeout: c.cfg.JoinTimeout,
		Encoding:    c.cfg.Encoding,
		Tickets:     c.tickets,
		Observer: func(msg wire.GameMessage) {
			c.observe(roomID, msg)
		},
	}, c.logger)
	if err != nil {
		_ = listener.Close()
		delete(c.ports, port)
		return nil, err
	}

	tickets := make(map[string]string, len(req.Players))
	for _, player := range req.Players {
		t, err := c.tickets.Issue(player, roomID)
		if err != nil {
			_ = listener.Close()
			delete(c.ports, port)
			return nil, err
		}
		tickets[player] = t
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g := &running{
		info: Info{
			RoomID:    roomID,
			Port:      port,
			Players:   append([]string(nil), req.Players...),
			GameKind:  req.GameKind,
			StartedAt: time.Now().UTC(),
		},
		instance: instance,
		listener: listener,
		cancel:   cancel,
	}
	c.games[roomID] = g

	c.wg.Add(2)
	go c.acceptLoop(g)
	go c.run(runCtx, g)

	c.logger.InfoContext(ctx, "instance allocated",
		slog.String("room_id", string(roomID)),
		slog.Int("port", port),
		slog.String("engine", manifest.Engine),
		slog.String("game_version", req.GameVersion))

	return &Assignment{
		RoomID:  roomID,
		Host:    c.cfg.AdvertiseHost,
		Port:    port,
		Engine:  manifest.Engine,
		Seed:    seed,
		Tickets: tickets,
	}, nil
}

// listenLocked opens a listener on the first free port of the range
func (c *Coordinator) listenLocked() (net.Listener, int, error) {
	if c.cfg.PortMin == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(c.cfg.ListenHost, "0"))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", model.ErrNoPortAvailable, err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		c.ports[port] = true
		return ln, port, nil
	}

	for port := c.cfg.PortMin; port <= c.cfg.PortMax; port++ {
		if c.ports[port] {
			continue
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(c.cfg.ListenHost, strconv.Itoa(port)))
		if err != nil {
			c.logger.Debug("port unavailable", slog.Int("port", port), slog.String("error", err.Error()))
			continue
		}
		c.ports[port] = true
		return ln, port, nil
	}
	return nil, 0, model.ErrNoPortAvailable
}

func (c *Coordinator) acceptLoop(g *running) {
	defer c.wg.Done()
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("accept failed", slog.String("room_id", string(g.info.RoomID)), slog.String("error", err.Error()))
			}
			return
		}
		g.instance.Attach(gameserver.NewTCPConn(conn, c.cfg.MaxFrameSize))
	}
}

func (c *Coordinator) run(ctx context.Context, g *running) {
	defer c.wg.Done()
	res := g.instance.Run(ctx)

	_ = g.listener.Close()

	c.mu.Lock()
	delete(c.ports, g.info.Port)
	if c.games[g.info.RoomID] == g {
		delete(c.games, g.info.RoomID)
	}
	stopped := g.stopped
	onEnd := c.onEnd
	c.mu.Unlock()

	g.cancel()
	c.logger.Info("instance released",
		slog.String("room_id", string(g.info.RoomID)),
		slog.Int("port", g.info.Port),
		slog.String("winner", res.Winner),
		slog.String("reason", res.Reason))

	if !stopped && onEnd != nil {
		onEnd(res)
	}
}

func (c *Coordinator) observe(roomID model.RoomID, msg wire.GameMessage) {
	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(roomID, msg)
	}
}

// End finishes the match in roomID with an outcome the database already
// recorded. Players see GAME_OVER with that winner and reason; the end is
// not reported back.
func (c *Coordinator) End(roomID model.RoomID, winner, reason string) error {
	c.mu.Lock()
	g, ok := c.games[roomID]
	if ok {
		g.stopped = true
	}
	c.mu.Unlock()
	if !ok {
		return model.ErrInstanceMissing
	}
	g.instance.End(winner, reason)
	return nil
}

// Attach hands conn to the instance of roomID
func (c *Coordinator) Attach(roomID model.RoomID, conn gameserver.Conn) error {
	c.mu.Lock()
	g, ok := c.games[roomID]
	c.mu.Unlock()
	if !ok {
		return model.ErrInstanceMissing
	}
	g.instance.Attach(conn)
	return nil
}

// Active lists the running instances ordered by room id
func (c *Coordinator) Active() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Info, 0, len(c.games))
	for _, g := range c.games {
		info := g.info
		info.Players = append([]string(nil), g.info.Players...)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Shutdown stops every instance and waits for them to release their ports
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, g := range c.games {
		g.stopped = true
		g.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
