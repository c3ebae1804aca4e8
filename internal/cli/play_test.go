package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/factory"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// syncBuffer is written by the session goroutine and read by the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lobbyClient(t *testing.T, addr string, realm model.Realm, username string) *client.Client {
	t.Helper()
	cc := client.DefaultConfig(addr)
	cc.RequestTimeout = 2 * time.Second
	c, err := client.Dial(context.Background(), cc, testutil.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Register(context.Background(), realm, username, "secret"))
	_, err = c.Login(context.Background(), realm, username, "secret")
	require.NoError(t, err)
	return c
}

func awaitStatus(t *testing.T, c *client.Client, status string) wire.Response {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case resp := <-c.Events():
			if resp.Status == status {
				return resp
			}
		case <-timeout:
			require.FailNow(t, "no notification", status)
		}
	}
}

func TestPlaySessionRunsGame(t *testing.T) {
	app, err := factory.NewTestApp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	ctx := context.Background()

	dev := lobbyClient(t, app.LobbyAddr(), model.RealmDeveloper, "dev")
	_, err = dev.Upload(ctx, "tetris", "falling blocks", []byte(`{"engine":"tetris","gravity":{"dropMs":10000}}`))
	require.NoError(t, err)
	bob := lobbyClient(t, app.LobbyAddr(), model.RealmPlayer, "bob")
	alice := lobbyClient(t, app.LobbyAddr(), model.RealmPlayer, "alice")
	require.NoError(t, alice.Logout(ctx))

	cfg = DefaultConfig()
	cfg.Lobby = app.LobbyAddr()
	cfg.User, cfg.Password = "alice", "secret"
	cfg.CacheDir = t.TempDir()

	in, typed := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runPlay(ctx, in, out) }()

	_, err = fmt.Fprintln(typed, "create public tetris")
	require.NoError(t, err)
	var roomID model.RoomID
	require.Eventually(t, func() bool {
		report, err := bob.Status(ctx)
		if err != nil || len(report.Rooms) == 0 {
			return false
		}
		roomID = report.Rooms[0].ID
		return true
	}, 5*time.Second, 20*time.Millisecond)

	_, err = bob.JoinRoom(ctx, roomID)
	require.NoError(t, err)
	_, err = fmt.Fprintln(typed, "start")
	require.NoError(t, err)

	info, err := wire.ParseP2PInfo(awaitStatus(t, bob, wire.StatusP2PInfo))
	require.NoError(t, err)
	game, err := client.DialGame(ctx, client.DefaultConfig(app.LobbyAddr()), info, testutil.NopLogger())
	require.NoError(t, err)
	defer game.Close()
	require.NoError(t, game.Join("bob", roomID, info.Ticket))
	require.NoError(t, game.Ready())
	for {
		msg, err := game.Read()
		require.NoError(t, err)
		if msg.Type == wire.GameStart {
			break
		}
	}

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "alice  score 0")
	}, 5*time.Second, 20*time.Millisecond, out.String())
	assert.Contains(t, out.String(), "Downloaded tetris version "+info.GameVersion)

	cache, err := client.OpenCache(cfg.CacheDir)
	require.NoError(t, err)
	version, ok := cache.Version("tetris")
	assert.True(t, ok)
	assert.Equal(t, info.GameVersion, version)

	require.NoError(t, game.Close())
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Game over: alice wins ("+model.ReasonForfeit+")")
	}, 5*time.Second, 20*time.Millisecond, out.String())

	require.NoError(t, typed.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "play session did not end")
	}
}

func TestPlayCommandErrorsKeepSessionOpen(t *testing.T) {
	app, err := factory.NewTestApp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	cfg = DefaultConfig()
	cfg.Lobby = app.LobbyAddr()
	cfg.User, cfg.Password = "carol", "secret"
	cfg.CacheDir = t.TempDir()

	carol := lobbyClient(t, app.LobbyAddr(), model.RealmPlayer, "carol")
	require.NoError(t, carol.Logout(context.Background()))

	out := &syncBuffer{}
	input := strings.NewReader("join\nleft\nfly\njoin 999999\nquit\n")
	require.NoError(t, runPlay(context.Background(), input, out))

	text := out.String()
	assert.Contains(t, text, "Logged in as carol")
	assert.Contains(t, text, "usage: join <room_id>")
	assert.Contains(t, text, "no game in progress")
	assert.Contains(t, text, `unknown command "fly"`)
	assert.Contains(t, text, "error: ")
	assert.False(t, app.Database.Players.IsOnline("carol"))
}
