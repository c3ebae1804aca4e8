package gameserver

import (
	"net"
	"time"

	"github.com/mcoot/gamelobby-go/internal/wire"
)

// writeTimeout bounds a single frame write to a peer
const writeTimeout = 5 * time.Second

// Conn is a peer's transport to an instance. Read returns an error
// matching model.ErrOversizeFrame or model.ErrMalformedFrame for a frame
// that was discarded; any other error means the peer is gone.
type Conn interface {
	Read() (wire.GameMessage, error)
	Write(msg wire.GameMessage) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	codec *wire.Codec
}

// NewTCPConn serves the length-prefixed frame protocol over c
func NewTCPConn(c net.Conn, maxFrame int) Conn {
	codec := wire.NewCodec(c, maxFrame)
	codec.DiscardOversize = true
	return &tcpConn{codec: codec}
}

func (c *tcpConn) Read() (wire.GameMessage, error) {
	var msg wire.GameMessage
	err := c.codec.Read(&msg)
	return msg, err
}

func (c *tcpConn) Write(msg wire.GameMessage) error {
	_ = c.codec.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.codec.Write(msg)
}

func (c *tcpConn) Close() error {
	return c.codec.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.codec.RemoteAddr().String()
}
