// Package client speaks the lobby protocol: commands and their replies,
// pushed notifications, artifact transfers and the game connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Config holds client configuration
type Config struct {
	Addr            string
	MaxFrameSize    int
	DialTimeout     time.Duration
	RequestTimeout  time.Duration
	ReadyTimeout    time.Duration
	DownloadTimeout time.Duration
	ConnectAttempts int
	ConnectInterval time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		MaxFrameSize:    wire.DefaultMaxFrameSize,
		DialTimeout:     5 * time.Second,
		RequestTimeout:  10 * time.Second,
		ReadyTimeout:    10 * time.Second,
		DownloadTimeout: 15 * time.Second,
		ConnectAttempts: 10,
		ConnectInterval: 2 * time.Second,
	}
}

// eventBuffer bounds the notifications held for a slow consumer
const eventBuffer = 64

// frame is one reply as read off the lobby connection. Data holds the
// bytes that follow a file_transfer frame.
type frame struct {
	resp wire.Response
	data []byte
}

// Client is one logged-in (or anonymous) connection to the lobby.
// Requests are serialised; notifications arrive on Events.
type Client struct {
	cfg    Config
	codec  *wire.Codec
	logger *slog.Logger

	replies chan frame
	events  chan wire.Response
	done    chan struct{}

	mu       sync.Mutex
	realm    model.Realm
	username string

	errMu   sync.Mutex
	readErr error
	once    sync.Once
}

// Dial connects to the lobby at cfg.Addr
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial lobby %s: %w", cfg.Addr, err)
	}
	return New(conn, cfg, logger), nil
}

// New wraps an established lobby connection
func New(conn net.Conn, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	c := &Client{
		cfg:     cfg,
		codec:   wire.NewCodec(conn, cfg.MaxFrameSize),
		logger:  logger.With(slog.String("component", "client"), slog.String("lobby", cfg.Addr)),
		replies: make(chan frame),
		events:  make(chan wire.Response, eventBuffer),
		done:    make(chan struct{}),
		realm:   model.RealmPlayer,
	}
	go c.readLoop()
	return c
}

// Events delivers pushed notifications: update, invite, invite_declined
// and p2p_info. The channel is closed when the connection ends.
func (c *Client) Events() <-chan wire.Response {
	return c.events
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Close ends the connection
func (c *Client) Close() error {
	var err error
	c.once.Do(func() { err = c.codec.Close() })
	return err
}

// Username returns the logged-in user, or "" before login
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		var resp wire.Response
		err := c.codec.Read(&resp)
		if errors.Is(err, model.ErrMalformedFrame) {
			c.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}

		switch resp.Status {
		case wire.StatusFileTransfer:
			var ft wire.FileTransfer
			if err := resp.DecodeParam(0, &ft); err != nil {
				c.fail(fmt.Errorf("decode file transfer: %w", err))
				return
			}
			data, err := c.codec.ReadRaw(ft.FileSize)
			if err != nil {
				c.fail(err)
				return
			}
			if !c.deliver(frame{resp: resp, data: data}) {
				return
			}
		case wire.StatusSuccess, wire.StatusError, wire.StatusStatus, wire.StatusReady:
			if !c.deliver(frame{resp: resp}) {
				return
			}
		default:
			select {
			case c.events <- resp:
			default:
				c.logger.Warn("dropping notification", slog.String("status", resp.Status), slog.String("message", resp.Message))
			}
		}
	}
}

// deliver hands a reply to the waiting request. A reply nobody claims
// within a request timeout is dropped.
func (c *Client) deliver(f frame) bool {
	timer := time.NewTimer(c.cfg.RequestTimeout + time.Second)
	defer timer.Stop()
	select {
	case c.replies <- f:
	case <-timer.C:
		c.logger.Warn("dropping unexpected reply", slog.String("message", f.resp.Message))
	}
	return true
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
	_ = c.Close()
}

// await waits for the next reply. A reply that does not arrive in time
// closes the connection since later replies could no longer be matched.
func (c *Client) await(ctx context.Context, timeout time.Duration) (frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-c.replies:
		return f, nil
	case <-c.done:
		if err := c.Err(); err != nil && !wire.IsClosed(err) {
			return frame{}, fmt.Errorf("%w: %v", model.ErrTransportClosed, err)
		}
		return frame{}, model.ErrTransportClosed
	case <-timer.C:
		_ = c.Close()
		return frame{}, model.ErrTransferTimeout
	case <-ctx.Done():
		_ = c.Close()
		return frame{}, ctx.Err()
	}
}

// Do sends command and returns its reply. An error envelope is returned
// as a *wire.RemoteError.
func (c *Client) Do(ctx context.Context, command string, params ...any) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, command, params...)
}

func (c *Client) do(ctx context.Context, command string, params ...any) (wire.Response, error) {
	if err := c.codec.Write(wire.NewCommand(c.realm.Sender(), command, params...)); err != nil {
		return wire.Response{}, fmt.Errorf("%w: %v", model.ErrTransportClosed, err)
	}
	f, err := c.await(ctx, c.cfg.RequestTimeout)
	if err != nil {
		return wire.Response{}, err
	}
	if err := f.resp.Err(); err != nil {
		return f.resp, err
	}
	return f.resp, nil
}
