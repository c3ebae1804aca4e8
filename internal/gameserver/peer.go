package gameserver

import (
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// sendBuffer is the number of outbound messages queued per peer. A peer
// that falls this far behind is dropped.
const sendBuffer = 64

// peer is one connection attached to an instance. The instance loop owns
// every field except send, which the writer goroutine drains.
type peer struct {
	conn     Conn
	send     chan wire.GameMessage
	role     string
	username string
	seat     int
	closed   bool
}

func newPeer(conn Conn) *peer {
	return &peer{
		conn: conn,
		send: make(chan wire.GameMessage, sendBuffer),
		seat: -1,
	}
}

// enqueue queues msg without blocking and reports whether it fit
func (p *peer) enqueue(msg wire.GameMessage) bool {
	if p.closed {
		return false
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the writer once it has flushed what is queued
func (p *peer) close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// writeLoop writes queued messages until the queue is closed or the
// instance is done, then closes the connection
func (p *peer) writeLoop(done <-chan struct{}) {
	defer p.conn.Close()
	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.Write(msg); err != nil {
				return
			}
		case <-done:
			p.flush()
			return
		}
	}
}

func (p *peer) flush() {
	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.Write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
