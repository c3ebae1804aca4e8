package gameserver

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// wsReadLimitFactor sets the hard websocket read limit as a multiple of the
// frame cap. Messages between the cap and the hard limit are discarded;
// larger ones make gorilla close the connection.
const wsReadLimitFactor = 4

type wsConn struct {
	ws  *websocket.Conn
	max int
}

// NewWSConn serves the game protocol as JSON text messages over ws
func NewWSConn(ws *websocket.Conn, maxFrame int) Conn {
	if maxFrame <= 0 {
		maxFrame = wire.DefaultMaxFrameSize
	}
	ws.SetReadLimit(int64(maxFrame) * wsReadLimitFactor)
	return &wsConn{ws: ws, max: maxFrame}
}

func (c *wsConn) Read() (wire.GameMessage, error) {
	var msg wire.GameMessage
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if len(data) > c.max {
		return msg, fmt.Errorf("%w: %d bytes", model.ErrOversizeFrame, len(data))
	}
	if err := wire.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	return msg, nil
}

func (c *wsConn) Write(msg wire.GameMessage) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
