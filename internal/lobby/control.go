package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// ControlConfig holds configuration for the control link
type ControlConfig struct {
	Addr          string
	MaxFrameSize  int
	DialTimeout   time.Duration
	RetryInterval time.Duration
	MaxRetries    uint64
	CallTimeout   time.Duration
}

// DefaultControlConfig returns default control link configuration
func DefaultControlConfig(addr string) ControlConfig {
	return ControlConfig{
		Addr:          addr,
		MaxFrameSize:  wire.DefaultMaxFrameSize,
		DialTimeout:   5 * time.Second,
		RetryInterval: 2 * time.Second,
		MaxRetries:    9,
		CallTimeout:   10 * time.Second,
	}
}

// ControlLink is the lobby's own connection to the database. It carries
// commands sent as the lobby itself: game results and the status API's
// read-only queries. Calls are serialised.
type ControlLink struct {
	cfg    ControlConfig
	logger *slog.Logger

	mu    sync.Mutex
	codec *wire.Codec
}

// NewControlLink creates a control link; the connection is dialled lazily
func NewControlLink(cfg ControlConfig, logger *slog.Logger) *ControlLink {
	return &ControlLink{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "control_link")),
	}
}

// Call sends command as the lobby and waits for the reply. A broken
// connection is redialled once before the call fails.
func (l *ControlLink) Call(ctx context.Context, command string, params ...any) (wire.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd := wire.NewCommand(model.SenderLobby, command, params...)
	resp, err := l.roundTrip(ctx, cmd)
	if err == nil {
		return resp, nil
	}
	l.logger.WarnContext(ctx, "control link call failed, redialling",
		slog.String("command", command),
		slog.String("error", err.Error()))
	l.dropLocked()

	resp, err = l.roundTrip(ctx, cmd)
	if err != nil {
		l.dropLocked()
		return wire.Response{}, fmt.Errorf("%w: %v", model.ErrDownstreamUnavailable, err)
	}
	return resp, nil
}

func (l *ControlLink) roundTrip(ctx context.Context, cmd wire.Command) (wire.Response, error) {
	if err := l.connectLocked(ctx); err != nil {
		return wire.Response{}, err
	}
	deadline := time.Now().Add(l.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = l.codec.SetWriteDeadline(deadline)
	_ = l.codec.SetReadDeadline(deadline)
	if err := l.codec.Write(cmd); err != nil {
		return wire.Response{}, err
	}
	var resp wire.Response
	if err := l.codec.Read(&resp); err != nil {
		return wire.Response{}, err
	}
	return resp, nil
}

// connectLocked dials the database, retrying at a constant interval
func (l *ControlLink) connectLocked(ctx context.Context) error {
	if l.codec != nil {
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.cfg.RetryInterval), l.cfg.MaxRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		conn, err := net.DialTimeout("tcp", l.cfg.Addr, l.cfg.DialTimeout)
		if err != nil {
			l.logger.DebugContext(ctx, "database dial failed", slog.String("error", err.Error()))
			return err
		}
		l.codec = wire.NewCodec(conn, l.cfg.MaxFrameSize)
		l.logger.InfoContext(ctx, "control link connected", slog.String("addr", l.cfg.Addr))
		return nil
	}, policy)
}

func (l *ControlLink) dropLocked() {
	if l.codec != nil {
		_ = l.codec.Close()
		l.codec = nil
	}
}

// Close closes the connection
func (l *ControlLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked()
	return nil
}
