package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/model"
)

type FrameSuite struct {
	suite.Suite
}

func TestFrameSuite(t *testing.T) {
	suite.Run(t, new(FrameSuite))
}

func header(n uint32) []byte {
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], n)
	return h[:]
}

func (s *FrameSuite) TestWriteThenReadFrame() {
	var buf bytes.Buffer
	s.Require().NoError(WriteFrame(&buf, []byte(`{"a":1}`)))

	s.Equal(header(7), buf.Bytes()[:4])

	body, err := ReadFrame(&buf, DefaultMaxFrameSize)
	s.Require().NoError(err)
	s.Equal(`{"a":1}`, string(body))
}

func (s *FrameSuite) TestReadFrameAtMaximumSize() {
	var buf bytes.Buffer
	s.Require().NoError(WriteFrame(&buf, bytes.Repeat([]byte("x"), 16)))

	body, err := ReadFrame(&buf, 16)
	s.Require().NoError(err)
	s.Len(body, 16)
}

func (s *FrameSuite) TestReadFrameRejectsOversize() {
	buf := bytes.NewBuffer(header(DefaultMaxFrameSize + 1))

	_, err := ReadFrame(buf, DefaultMaxFrameSize)
	s.ErrorIs(err, model.ErrOversizeFrame)
}

func (s *FrameSuite) TestTruncatedFrameIsEOF() {
	buf := bytes.NewBuffer(append(header(10), []byte("abc")...))

	_, err := ReadFrame(buf, DefaultMaxFrameSize)
	s.ErrorIs(err, io.EOF)
}

func (s *FrameSuite) TestTruncatedHeaderIsEOF() {
	buf := bytes.NewBuffer([]byte{0, 0})

	_, err := ReadFrame(buf, DefaultMaxFrameSize)
	s.ErrorIs(err, io.EOF)
}

func (s *FrameSuite) TestEmptyStreamIsEOF() {
	_, err := ReadFrame(&bytes.Buffer{}, DefaultMaxFrameSize)
	s.ErrorIs(err, io.EOF)
}

func (s *FrameSuite) TestCodecRoundTripOverPipe() {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	left, right := NewCodec(a, 0), NewCodec(b, 0)

	go func() {
		_ = left.Write(NewCommand(model.SenderClient, CmdJoinRoom, "123456"))
	}()

	var cmd Command
	s.Require().NoError(right.Read(&cmd))
	s.Equal(CmdJoinRoom, cmd.Command)
	s.Equal(StatusCommand, cmd.Status)
	roomID, err := cmd.Param(0)
	s.Require().NoError(err)
	s.Equal("123456", roomID)
}

func (s *FrameSuite) TestCodecMalformedBodyKeepsStream() {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	codec := NewCodec(b, 0)

	go func() {
		_ = WriteFrame(a, []byte("not json"))
		_ = WriteFrame(a, []byte(`{"command":"CHECK","status":"command"}`))
	}()

	var cmd Command
	s.ErrorIs(codec.Read(&cmd), model.ErrMalformedFrame)
	s.Require().NoError(codec.Read(&cmd))
	s.Equal(CmdCheck, cmd.Command)
}

func (s *FrameSuite) TestCodecDiscardsOversizeWhenAsked() {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	codec := NewCodec(b, 8)
	codec.DiscardOversize = true

	go func() {
		_ = WriteFrame(a, bytes.Repeat([]byte("y"), 32))
		_ = WriteFrame(a, []byte(`{}`))
	}()

	_, err := codec.ReadRawFrame()
	s.ErrorIs(err, model.ErrOversizeFrame)

	body, err := codec.ReadRawFrame()
	s.Require().NoError(err)
	s.Equal("{}", string(body))
}

func (s *FrameSuite) TestWriteWithRawIsContiguous() {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	left, right := NewCodec(a, 0), NewCodec(b, 0)

	go func() {
		_ = left.WriteWithRaw(NewResponse(model.SenderLobby, StatusFileTransfer, MsgFileTransfer, 5), []byte("hello"))
	}()

	var resp Response
	s.Require().NoError(right.Read(&resp))
	s.Equal(StatusFileTransfer, resp.Status)
	data, err := right.ReadRaw(5)
	s.Require().NoError(err)
	s.Equal("hello", string(data))
}
