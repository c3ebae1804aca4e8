package lobby

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

func TestCallSkipsReplyOfTimedOutCommand(t *testing.T) {
	lobbyEnd, dbEnd := net.Pipe()
	db := wire.NewCodec(dbEnd, 0)
	defer db.Close()

	s := newSession(nil, "1", nil, wire.NewCodec(lobbyEnd, 0), testutil.NopLogger())
	go s.pumpDatabase()
	defer func() {
		s.closing.Store(true)
		close(s.quit)
		_ = s.db.Close()
		<-s.dbDone
	}()

	received := make(chan wire.Command, 4)
	go func() {
		for {
			var cmd wire.Command
			if err := db.Read(&cmd); err != nil {
				return
			}
			received <- cmd
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.call(ctx, wire.NewCommand(model.SenderClient, wire.CmdLogout))
	require.ErrorIs(t, err, model.ErrDownstreamUnavailable)
	assert.Equal(t, wire.CmdLogout, (<-received).Command)

	go func() {
		_ = db.Write(wire.Success(model.SenderDatabase, wire.MsgLogoutSuccess, "alice", []model.GameEnding{}))
		<-received
		_ = db.Write(wire.Success(model.SenderDatabase, wire.MsgServerClosedAck, "alice", []model.GameEnding{
			{RoomID: "123456", Winner: "bob", Reason: model.ReasonForfeit},
		}))
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := s.call(ctx, wire.NewCommand(model.SenderLobby, wire.CmdServerClosed, "alice", string(model.RealmPlayer)))
	require.NoError(t, err)
	assert.Equal(t, wire.MsgServerClosedAck, resp.Message)

	var ended []model.GameEnding
	require.NoError(t, resp.DecodeParam(1, &ended))
	require.Len(t, ended, 1)
	assert.Equal(t, "bob", ended[0].Winner)
}
