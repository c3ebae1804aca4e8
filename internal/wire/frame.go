package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// DefaultMaxFrameSize is the largest frame body accepted by default
const DefaultMaxFrameSize = 65536

const headerSize = 4

// ReadFrame reads one length-prefixed frame body from r.
// A length above maxSize yields model.ErrOversizeFrame without consuming the body.
// A stream that ends before or inside a frame yields io.EOF.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, eofOrErr(err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if int64(length) > int64(maxSize) {
		return nil, &OversizeError{Length: length, Max: maxSize}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, eofOrErr(err)
	}
	return body, nil
}

// WriteFrame writes body prefixed with its big-endian length
func WriteFrame(w io.Writer, body []byte) error {
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)
	_, err := w.Write(buf)
	return err
}

// OversizeError reports a frame header announcing more than the allowed bytes
type OversizeError struct {
	Length uint32
	Max    int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds maximum of %d", e.Length, e.Max)
}

// Is lets callers match model.ErrOversizeFrame
func (e *OversizeError) Is(target error) bool {
	return target == model.ErrOversizeFrame
}

func eofOrErr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// Codec reads and writes frames on a connection. Writes are serialised so
// that several goroutines may share one Codec; reads must come from one
// goroutine at a time.
type Codec struct {
	conn net.Conn
	r    *bufio.Reader
	max  int

	// DiscardOversize makes oversize frames be skipped instead of
	// leaving the stream unusable
	DiscardOversize bool

	wmu sync.Mutex
}

// NewCodec wraps conn. A maxSize of 0 selects DefaultMaxFrameSize.
func NewCodec(conn net.Conn, maxSize int) *Codec {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Codec{
		conn: conn,
		r:    bufio.NewReader(conn),
		max:  maxSize,
	}
}

// ReadRawFrame returns the next frame body
func (c *Codec) ReadRawFrame() ([]byte, error) {
	body, err := ReadFrame(c.r, c.max)
	var oversize *OversizeError
	if errors.As(err, &oversize) && c.DiscardOversize {
		if _, derr := io.CopyN(io.Discard, c.r, int64(oversize.Length)); derr != nil {
			return nil, eofOrErr(derr)
		}
	}
	return body, err
}

// Read decodes the next frame into v. A body that is not valid JSON for v
// yields an error wrapping model.ErrMalformedFrame; the stream stays usable.
func (c *Codec) Read(v any) error {
	body, err := c.ReadRawFrame()
	if err != nil {
		return err
	}
	if err := Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	return nil
}

// Write encodes v and writes it as one frame
func (c *Codec) Write(v any) error {
	body, err := Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, body)
}

// WriteWithRaw writes v as a frame immediately followed by data as raw
// bytes, with no other frame interleaved
func (c *Codec) WriteWithRaw(v any, data []byte) error {
	body, err := Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := WriteFrame(c.conn, body); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

// WriteRaw writes data unframed
func (c *Codec) WriteRaw(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(data)
	return err
}

// ReadRaw reads exactly n unframed bytes
func (c *Codec) ReadRaw(n int64) ([]byte, error) {
	if n < 0 {
		return nil, model.ErrBadRequest
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, eofOrErr(err)
	}
	return data, nil
}

// SetReadDeadline bounds the next reads
func (c *Codec) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline bounds the next writes
func (c *Codec) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// RemoteAddr returns the peer address
func (c *Codec) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection
func (c *Codec) Close() error {
	return c.conn.Close()
}

// IsClosed reports whether err means the peer went away
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
