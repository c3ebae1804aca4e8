// Package lobby is the client-facing frontend. Each client connection gets
// its own connection to the database; the lobby relays commands, streams
// artifact bytes and brings up game instances.
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
	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Config holds configuration for the lobby frontend
type Config struct {
	Host         string
	Port         int
	DatabaseAddr string
	MaxFrameSize int
	// MaxArtifactSize bounds uploaded artifact bytes
	MaxArtifactSize int64

	DialTimeout     time.Duration
	RequestTimeout  time.Duration
	UploadTimeout   time.Duration
	CloseAckTimeout time.Duration
}

// DefaultConfig returns default lobby configuration
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8888,
		DatabaseAddr:    "127.0.0.1:9000",
		MaxFrameSize:    wire.DefaultMaxFrameSize,
		MaxArtifactSize: 16 << 20,
		DialTimeout:     5 * time.Second,
		RequestTimeout:  10 * time.Second,
		UploadTimeout:   10 * time.Second,
		CloseAckTimeout: 5 * time.Second,
	}
}

// Games brings game instances up and down
type Games interface {
	Start(ctx context.Context, req coordinator.StartRequest) (*coordinator.Assignment, error)
	End(roomID model.RoomID, winner, reason string) error
}

// RoomEvents receives room notifications seen by the lobby
type RoomEvents interface {
	PublishRoomEvent(event model.RoomEvent)
}

// Server accepts client connections
type Server struct {
	cfg       Config
	games     Games
	blobs     blobstore.Store
	random    random.Random
	events    RoomEvents
	control   *ControlLink
	directory *Directory
	logger    *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
	nextID   atomic.Uint64
}

// NewServer creates a lobby. events and control may be nil.
func NewServer(
	cfg Config,
	games Games,
	blobs blobstore.Store,
	random random.Random,
	events RoomEvents,
	control *ControlLink,
	logger *slog.Logger,
) *Server {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	return &Server{
		cfg:       cfg,
		games:     games,
		blobs:     blobs,
		random:    random,
		events:    events,
		control:   control,
		directory: NewDirectory(),
		logger:    logger.With(slog.String("component", "lobby")),
		sessions:  make(map[*Session]struct{}),
	}
}

// Directory returns the index of logged-in sessions
func (s *Server) Directory() *Directory {
	return s.directory
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until Shutdown or ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("lobby listening", slog.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn serves one client. A database that cannot be reached ends only
// this connection.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	client := wire.NewCodec(conn, s.cfg.MaxFrameSize)
	logger := s.logger.With(slog.String("remote", conn.RemoteAddr().String()))

	dbConn, err := net.DialTimeout("tcp", s.cfg.DatabaseAddr, s.cfg.DialTimeout)
	if err != nil {
		logger.Warn("database unavailable", slog.String("error", err.Error()))
		_ = client.Write(wire.Failure(model.SenderLobby, fmt.Errorf("%w: %v", model.ErrDownstreamUnavailable, err)))
		_ = client.Close()
		return
	}

	sess := newSession(s, strconv.FormatUint(s.nextID.Add(1), 10), client, wire.NewCodec(dbConn, s.cfg.MaxFrameSize), logger)
	if !s.track(sess) {
		sess.closeTransports()
		return
	}
	defer s.untrack(sess)

	sess.Run(ctx)
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// ReportGameEnd tells the database how an instance ended. It is the
// coordinator's end-of-game callback.
func (s *Server) ReportGameEnd(result gameserver.Result) {
	if s.control == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.control.Call(ctx, wire.CmdGameEnded, string(result.RoomID), model.GameResults{
		Winner: result.Winner,
		Reason: result.Reason,
		Scores: result.Scores,
	})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.logger.Error("failed to report game end",
			slog.String("room_id", string(result.RoomID)),
			slog.String("error", err.Error()))
		return
	}
	s.publish(model.RoomEvent{
		Type:     model.EventGameFinished,
		RoomID:   result.RoomID,
		Username: result.Winner,
		Reason:   result.Reason,
	})
}

func (s *Server) publish(event model.RoomEvent) {
	if s.events != nil {
		s.events.PublishRoomEvent(event)
	}
}

// endInstances carries the database's verdicts into the instances of
// rooms it has finished
func (s *Server) endInstances(ended []model.GameEnding) {
	for _, e := range ended {
		if err := s.games.End(e.RoomID, e.Winner, e.Reason); err != nil && !errors.Is(err, model.ErrInstanceMissing) {
			s.logger.Warn("failed to end instance",
				slog.String("room_id", string(e.RoomID)),
				slog.String("error", err.Error()))
		}
	}
}

// Shutdown stops accepting, closes every session and waits for them
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for sess := range s.sessions {
		sess.closeTransports()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("lobby stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address once serving, else the configured one
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}
