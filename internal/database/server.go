package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// ServerConfig holds configuration for the database listener
type ServerConfig struct {
	Host         string
	Port         int
	MaxFrameSize int
}

// DefaultServerConfig returns sensible defaults for the database listener
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         9000,
		MaxFrameSize: wire.DefaultMaxFrameSize,
	}
}

// Server accepts lobby connections. Each connection is served by one
// goroutine that replies to its commands in order. Notifications are
// delivered on the connection of the user they target.
type Server struct {
	backend *Backend
	logger  *slog.Logger
	config  ServerConfig

	mu       sync.Mutex
	listener net.Listener
	conns    map[*serverConn]struct{}
	users    map[string]*serverConn
	closing  bool
	wg       sync.WaitGroup
	nextID   atomic.Uint64
}

type serverConn struct {
	codec *wire.Codec
	peer  *Peer
}

// NewServer creates a database server over backend
func NewServer(backend *Backend, config ServerConfig, logger *slog.Logger) *Server {
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	return &Server{
		backend: backend,
		logger:  logger.With(slog.String("component", "database_server")),
		config:  config,
		conns:   make(map[*serverConn]struct{}),
		users:   make(map[string]*serverConn),
	}
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until Shutdown or ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("database listening", slog.String("addr", ln.Addr().String()))

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

// ServeConn serves one lobby connection until it closes
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	codec := wire.NewCodec(conn, s.config.MaxFrameSize)
	codec.DiscardOversize = true
	sc := &serverConn{
		codec: codec,
		peer:  &Peer{ID: strconv.FormatUint(s.nextID.Add(1), 10)},
	}
	logger := s.logger.With(slog.String("conn", sc.peer.ID))

	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()

	defer func() {
		if sc.peer.LoggedIn() {
			resp := s.backend.Disconnect(ctx, sc.peer)
			s.deliver(resp.Notify)
		}
		s.untrack(sc)
		_ = codec.Close()
		logger.Debug("connection closed")
	}()

	for {
		var cmd wire.Command
		if err := codec.Read(&cmd); err != nil {
			if errors.Is(err, model.ErrMalformedFrame) {
				if werr := codec.Write(wire.Failure(model.SenderDatabase, err)); werr != nil {
					return
				}
				continue
			}
			if errors.Is(err, model.ErrOversizeFrame) {
				logger.Warn("closing connection after oversize frame")
				_ = codec.Write(wire.Failure(model.SenderDatabase, err))
				return
			}
			if !wire.IsClosed(err) {
				logger.Warn("read failed", slog.String("error", err.Error()))
			}
			return
		}

		before := userKey(sc.peer.Realm, sc.peer.Username)
		resp := s.backend.Handle(ctx, sc.peer, cmd)
		s.retrack(sc, before)

		if err := codec.Write(resp.Public()); err != nil {
			logger.Debug("write failed", slog.String("error", err.Error()))
			return
		}
		s.deliver(resp.Notify)
	}
}

func userKey(realm model.Realm, username string) string {
	if username == "" {
		return ""
	}
	return string(realm) + "/" + username
}

// retrack updates the user index after a command that may have logged the
// connection's user in or out
func (s *Server) retrack(sc *serverConn, before string) {
	after := userKey(sc.peer.Realm, sc.peer.Username)
	if after == before {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if before != "" && s.users[before] == sc {
		delete(s.users, before)
	}
	if after != "" {
		s.users[after] = sc
	}
}

func (s *Server) untrack(sc *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, sc)
	for key, c := range s.users {
		if c == sc {
			delete(s.users, key)
		}
	}
}

// deliver writes each notification to its target's connection. Targets
// that are not connected are skipped.
func (s *Server) deliver(notify []wire.Notification) {
	for _, n := range notify {
		s.mu.Lock()
		target, ok := s.users[userKey(n.Realm, n.Target)]
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("dropping notification for offline user",
				slog.String("target", n.Target),
				slog.String("message", n.Response.Message))
			continue
		}
		if err := target.codec.Write(n.Response.Public()); err != nil {
			s.logger.Debug("failed to deliver notification",
				slog.String("target", n.Target),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for sc := range s.conns {
		_ = sc.codec.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("database server stopped")
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
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
