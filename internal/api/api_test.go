package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/gamelobby-go/internal/api"
	"github.com/mcoot/gamelobby-go/internal/api/apierr"
	"github.com/mcoot/gamelobby-go/internal/api/response"
	"github.com/mcoot/gamelobby-go/internal/api/sse"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/gameserver"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/testutil"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// fakeDatabase answers commands with canned responses
type fakeDatabase struct {
	mu        sync.Mutex
	responses map[string]wire.Response
	err       error
	calls     []wire.Command
}

func (f *fakeDatabase) Call(_ context.Context, command string, params ...any) (wire.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, wire.NewCommand(model.SenderLobby, command, params...))
	if f.err != nil {
		return wire.Response{}, f.err
	}
	resp, ok := f.responses[command]
	if !ok {
		return wire.Failure(model.SenderDatabase, model.ErrUnknownCommand), nil
	}
	return resp, nil
}

type fakeGames struct {
	mu       sync.Mutex
	active   []coordinator.Info
	attached []gameserver.Conn
}

func (f *fakeGames) Active() []coordinator.Info {
	return f.active
}

func (f *fakeGames) Attach(roomID model.RoomID, conn gameserver.Conn) error {
	if roomID != "111111" {
		return fmt.Errorf("room %s: %w", roomID, model.ErrInstanceMissing)
	}
	f.mu.Lock()
	f.attached = append(f.attached, conn)
	f.mu.Unlock()
	return nil
}

func (f *fakeGames) attachedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attached)
}

type testServer struct {
	handler http.Handler
	db      *fakeDatabase
	games   *fakeGames
	hubs    *sse.HubManager
}

var updated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	report := model.StatusReport{
		Rooms: []model.Room{
			{ID: "111111", Creator: "alice", Players: []string{"alice", "bob"}, Visibility: model.VisibilityPublic,
				Status: model.RoomInGame, GameKind: "tetris", GameVersion: "1.0", UpdatedAt: updated},
			{ID: "222222", Creator: "carol", Players: []string{"carol"}, Visibility: model.VisibilityPrivate,
				Status: model.RoomWaiting, GameKind: "tetris", GameVersion: "1.1", UpdatedAt: updated},
		},
		OnlineUsers: []model.Session{{Username: "carol"}, {Username: "alice"}, {Username: "bob"}},
	}
	listings := []model.ArtifactListing{{
		Name: "tetris", Publisher: "dev", Description: "falling blocks", Version: "1.1", Size: 42,
		Rating: model.ReviewSummary{Count: 2, Average: 4.5}, UpdatedAt: updated,
	}}
	reviews := []model.Review{
		{ArtifactName: "tetris", Reviewer: "alice", Rating: 5, Comment: "great", Timestamp: updated},
		{ArtifactName: "tetris", Reviewer: "bob", Rating: 4, Timestamp: updated},
	}

	db := &fakeDatabase{responses: map[string]wire.Response{
		wire.CmdShowStatus:   wire.Success(model.SenderDatabase, wire.MsgStatus, report),
		wire.CmdListAllGames: wire.Success(model.SenderDatabase, wire.MsgGames, listings),
		wire.CmdGetReviews:   wire.Success(model.SenderDatabase, wire.MsgReviews, "tetris", reviews, model.ReviewSummary{Count: 2, Average: 4.5}),
	}}
	games := &fakeGames{active: []coordinator.Info{{RoomID: "111111", Port: 9100, Players: []string{"alice", "bob"}, GameKind: "tetris", StartedAt: updated}}}
	logger := testutil.NopLogger()
	hubs := sse.NewHubManager(logger)
	t.Cleanup(hubs.CloseAll)

	router := api.NewRouter(api.RouterConfig{
		Logger:       logger,
		Database:     db,
		Games:        games,
		HubManager:   hubs,
		Sessions:     func() int { return 3 },
		MaxFrameSize: wire.DefaultMaxFrameSize,
	})
	return &testServer{handler: router, db: db, games: games, hubs: hubs}
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, wire.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health response.Health
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Sessions)
	assert.Equal(t, 1, health.Instances)
}

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	ts := newTestServer(t)
	ts.db.err = model.ErrDownstreamUnavailable

	rec := ts.get("/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health response.Health
	decode(t, rec, &health)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, model.ErrDownstreamUnavailable.Error(), health.Database)
}

func TestRoomsMergesRunningInstances(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/v1/rooms")
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms response.Rooms
	decode(t, rec, &rooms)
	require.Len(t, rooms.Rooms, 2)

	inGame := rooms.Rooms[0]
	assert.Equal(t, "111111", inGame.ID)
	assert.Equal(t, "alice", inGame.Host)
	require.NotNil(t, inGame.Instance)
	assert.Equal(t, 9100, inGame.Instance.Port)

	waiting := rooms.Rooms[1]
	assert.Equal(t, "private", waiting.Visibility)
	assert.Nil(t, waiting.Instance)

	assert.Equal(t, []string{"alice", "bob", "carol"}, rooms.OnlineUsers)
	assert.Empty(t, rooms.History)
}

func TestRoomsDatabaseUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.db.err = fmt.Errorf("dial: %w", model.ErrDownstreamUnavailable)

	rec := ts.get("/api/v1/rooms")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apierr.ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, wire.CodeDownstreamUnavailable, body.Error.Code)
}

func TestGames(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/v1/games")
	require.Equal(t, http.StatusOK, rec.Code)

	var games response.Games
	decode(t, rec, &games)
	require.Len(t, games.Games, 1)
	assert.Equal(t, "tetris", games.Games[0].Name)
	assert.Equal(t, "1.1", games.Games[0].Version)
	assert.Equal(t, 2, games.Games[0].Reviews)
	assert.InDelta(t, 4.5, games.Games[0].Rating, 0.001)
}

func TestReviews(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/v1/games/tetris/reviews")
	require.Equal(t, http.StatusOK, rec.Code)

	var reviews response.Reviews
	decode(t, rec, &reviews)
	assert.Equal(t, "tetris", reviews.Game)
	assert.Len(t, reviews.Reviews, 2)
	assert.Equal(t, 2, reviews.Summary.Count)

	ts.db.mu.Lock()
	last := ts.db.calls[len(ts.db.calls)-1]
	ts.db.mu.Unlock()
	assert.Equal(t, wire.CmdGetReviews, last.Command)
	name, err := last.Param(0)
	require.NoError(t, err)
	assert.Equal(t, "tetris", name)
}

func TestReviewsUnknownGame(t *testing.T) {
	ts := newTestServer(t)
	ts.db.responses[wire.CmdGetReviews] = wire.Failure(model.SenderDatabase, fmt.Errorf("reviews of pong: %w", model.ErrGameNotFound))

	rec := ts.get("/api/v1/games/pong/reviews")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsRejectsInvalidRoomID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/api/v1/rooms/abc/events")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ts.hubs.Len())
}

func TestEventsStreamRoomEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/rooms/222222/events?watcher=tester")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event: connected")

	require.Eventually(t, func() bool {
		hub := ts.hubs.GetHub("222222")
		return hub != nil && hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	sse.NewBroadcaster(ts.hubs, testutil.NopLogger()).PublishRoomEvent(model.RoomEvent{
		Type:   model.EventPlayerJoined,
		RoomID: "222222",
	})

	var received strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(received.String(), "event: room") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			break
		}
		received.Write(buf[:n])
	}
	assert.Contains(t, received.String(), "event: room")
	assert.Contains(t, received.String(), string(model.EventPlayerJoined))
}

func TestPlayAttachesWebsocket(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/rooms/111111/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return ts.games.attachedCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPlayClosesWhenNoGameRuns(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/rooms/333333/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, 0, ts.games.attachedCount())
}
