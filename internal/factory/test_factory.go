package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/blobstore/local"
	"github.com/mcoot/gamelobby-go/internal/config"
	"github.com/mcoot/gamelobby-go/internal/dependencies/mocks"
	"github.com/mcoot/gamelobby-go/internal/services/auth"
	"github.com/mcoot/gamelobby-go/internal/storage/memory"
)

// TestApp runs a database and a lobby in-process on loopback ports
type TestApp struct {
	Config   config.Config
	Database *Database
	Lobby    *Lobby

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom

	lobbyAddr string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// TestConfig returns configuration suited to in-process tests: fast
// password hashing, system-chosen ports and no status API listener
func TestConfig(blobDir string) config.Config {
	cfg := config.Default()
	cfg.Auth.PasswordHash = auth.HashSHA256
	cfg.Marketplace.Dir = blobDir
	cfg.Database.Host = "127.0.0.1"
	cfg.Lobby.Host = "127.0.0.1"
	cfg.Lobby.DialTimeout = time.Second
	cfg.Game.ListenHost = "127.0.0.1"
	cfg.Game.AdvertiseHost = "127.0.0.1"
	cfg.Game.PortMin = 0
	cfg.Game.PortMax = 0
	cfg.Game.TicketSecret = "test-secret"
	cfg.Game.JoinTimeout = 5 * time.Second
	cfg.API.Enabled = false
	return cfg
}

// NewTestApp wires both processes over memory storage and a local blob
// store in blobDir, then starts serving
func NewTestApp(blobDir string) (*TestApp, error) {
	cfg := TestConfig(blobDir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	blobs, err := local.New(blobDir)
	if err != nil {
		return nil, err
	}
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	dbListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	cfg.Database.Port = dbListener.Addr().(*net.TCPAddr).Port

	lobbyListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = dbListener.Close()
		return nil, err
	}
	cfg.Lobby.Port = lobbyListener.Addr().(*net.TCPAddr).Port

	db, err := newDatabaseWithDependencies(memory.New(), blobs, mockClock, mockRandom, cfg, logger)
	if err == nil {
		var lob *Lobby
		lob, err = newLobbyWithDependencies(blobs, mockClock, mockRandom, cfg, logger)
		if err == nil {
			ctx, cancel := context.WithCancel(context.Background())
			app := &TestApp{
				Config:     cfg,
				Database:   db,
				Lobby:      lob,
				MockClock:  mockClock,
				MockRandom: mockRandom,
				lobbyAddr:  lobbyListener.Addr().String(),
				cancel:     cancel,
			}
			app.serve(ctx, dbListener, lobbyListener)
			return app, nil
		}
	}
	_ = dbListener.Close()
	_ = lobbyListener.Close()
	return nil, err
}

func (t *TestApp) serve(ctx context.Context, dbListener, lobbyListener net.Listener) {
	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		_ = t.Database.Server.Serve(ctx, dbListener)
	}()
	go func() {
		defer t.wg.Done()
		_ = t.Lobby.Server.Serve(ctx, lobbyListener)
	}()
}

// LobbyAddr returns the address clients dial
func (t *TestApp) LobbyAddr() string {
	return t.lobbyAddr
}

// Close stops the lobby, its game instances and the database
func (t *TestApp) Close() error {
	var err error
	t.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(
			t.Lobby.Server.Shutdown(ctx),
			t.Database.Server.Shutdown(ctx),
		)
		t.Lobby.Coordinator.Shutdown()
		t.Lobby.HubManager.CloseAll()
		_ = t.Lobby.Control.Close()
		t.cancel()
		t.wg.Wait()
	})
	return err
}
