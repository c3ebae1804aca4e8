package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mcoot/gamelobby-go/internal/api"
	"github.com/mcoot/gamelobby-go/internal/api/sse"
	"github.com/mcoot/gamelobby-go/internal/blobstore"
	"github.com/mcoot/gamelobby-go/internal/blobstore/local"
	"github.com/mcoot/gamelobby-go/internal/blobstore/s3store"
	"github.com/mcoot/gamelobby-go/internal/config"
	"github.com/mcoot/gamelobby-go/internal/coordinator"
	"github.com/mcoot/gamelobby-go/internal/database"
	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/lobby"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/scheduler"
	"github.com/mcoot/gamelobby-go/internal/services/auth"
	"github.com/mcoot/gamelobby-go/internal/services/marketplace"
	"github.com/mcoot/gamelobby-go/internal/services/presence"
	"github.com/mcoot/gamelobby-go/internal/services/reviews"
	"github.com/mcoot/gamelobby-go/internal/services/rooms"
	"github.com/mcoot/gamelobby-go/internal/storage"
	"github.com/mcoot/gamelobby-go/internal/storage/memory"
	"github.com/mcoot/gamelobby-go/internal/storage/postgres"
	redisstorage "github.com/mcoot/gamelobby-go/internal/storage/redis"
	"github.com/mcoot/gamelobby-go/internal/ticket"
)

const shutdownTimeout = 30 * time.Second

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Blob store type constants
const (
	BlobStoreLocal = "local"
	BlobStoreS3    = "s3"
)

// Database contains the wired components of the database process
type Database struct {
	Storage storage.Storage
	Blobs   blobstore.Store

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	AuthService        *auth.Service
	Players            *presence.Registry
	Developers         *presence.Registry
	Rooms              *rooms.Registry
	MarketplaceService *marketplace.Service
	ReviewService      *reviews.Service

	Backend   *database.Backend
	Server    *database.Server
	Scheduler *scheduler.Scheduler

	logger *slog.Logger
}

// Lobby contains the wired components of the lobby process
type Lobby struct {
	Blobs blobstore.Store

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	Tickets     *ticket.Issuer
	Coordinator *coordinator.Coordinator
	Control     *lobby.ControlLink
	HubManager  *sse.HubManager
	Broadcaster *sse.Broadcaster
	Server      *lobby.Server
	Router      http.Handler
	// API is nil when the status API is disabled
	API       *api.Server
	Scheduler *scheduler.Scheduler

	logger *slog.Logger
}

func nopLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return logger
}

// NewStorage opens the configured storage backend
func NewStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "", StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		if cfg.RedisURL != "" {
			redisCfg.URL = cfg.RedisURL
		}
		if cfg.RedisPrefix != "" {
			redisCfg.KeyPrefix = cfg.RedisPrefix
		}
		return redisstorage.New(redisCfg)
	case StorageTypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres_dsn required when storage type is postgres")
		}
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.PostgresDSN
		return postgres.New(pgCfg)
	default:
		return nil, fmt.Errorf("invalid storage type %q: must be memory, redis or postgres", cfg.Type)
	}
}

// NewBlobStore opens the configured artifact store
func NewBlobStore(ctx context.Context, cfg config.MarketplaceConfig) (blobstore.Store, error) {
	switch cfg.BlobStore {
	case "", BlobStoreLocal:
		return local.New(cfg.Dir)
	case BlobStoreS3:
		s3cfg := s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			KeyPrefix:       cfg.S3.KeyPrefix,
		}
		return s3store.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("invalid blob store %q: must be local or s3", cfg.BlobStore)
	}
}

// NewDatabase wires the database process from configuration
func NewDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Database, error) {
	logger = nopLogger(logger)

	store, err := NewStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	blobs, err := NewBlobStore(ctx, cfg.Marketplace)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return newDatabaseWithDependencies(store, blobs, clock.New(), random.New(), cfg, logger)
}

// newDatabaseWithDependencies wires the database process over the given
// dependencies (useful for testing)
func newDatabaseWithDependencies(
	store storage.Storage,
	blobs blobstore.Store,
	clk clock.Clock,
	rnd random.Random,
	cfg config.Config,
	logger *slog.Logger,
) (*Database, error) {
	authService, err := auth.New(store, clk, auth.Config{
		HashFunc:   cfg.Auth.PasswordHash,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	players := presence.New(model.RealmPlayer, clk)
	developers := presence.New(model.RealmDeveloper, clk)
	roomRegistry := rooms.New(clk, rnd, rooms.Config{HistorySize: cfg.Database.HistorySize})
	market := marketplace.New(store, blobs, rnd, clk, logger)
	reviewService := reviews.New(store, clk, logger)

	backend := database.New(authService, players, developers, roomRegistry, market, reviewService, store, clk, logger)
	server := database.NewServer(backend, database.ServerConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		MaxFrameSize: cfg.Database.MaxFrameSize,
	}, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.HistoryPrune > 0 {
		job := scheduler.HistoryPruneJob(backend, cfg.Database.HistoryPrune, cfg.Database.HistoryRetention, logger)
		if err := sched.Add(job); err != nil {
			return nil, err
		}
	}

	return &Database{
		Storage:            store,
		Blobs:              blobs,
		Clock:              clk,
		Random:             rnd,
		AuthService:        authService,
		Players:            players,
		Developers:         developers,
		Rooms:              roomRegistry,
		MarketplaceService: market,
		ReviewService:      reviewService,
		Backend:            backend,
		Server:             server,
		Scheduler:          sched,
		logger:             logger,
	}, nil
}

// Run serves the database port until ctx is cancelled, then shuts down
func (d *Database) Run(ctx context.Context) error {
	d.Scheduler.Start()
	defer func() {
		if err := d.Scheduler.Shutdown(); err != nil {
			d.logger.Warn("scheduler shutdown failed", slog.String("error", err.Error()))
		}
	}()
	return runUntilDone(ctx, d.Server.Start, d.Server.Shutdown)
}

// NewLobby wires the lobby process from configuration
func NewLobby(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Lobby, error) {
	logger = nopLogger(logger)

	blobs, err := NewBlobStore(ctx, cfg.Marketplace)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	clk := clock.New()
	return newLobbyWithDependencies(blobs, clk, random.New(), cfg, logger)
}

// newLobbyWithDependencies wires the lobby process over the given
// dependencies (useful for testing)
func newLobbyWithDependencies(
	blobs blobstore.Store,
	clk clock.Clock,
	rnd random.Random,
	cfg config.Config,
	logger *slog.Logger,
) (*Lobby, error) {
	bag := tetris.BagRule(cfg.Game.BagRule)
	if !bag.Valid() {
		return nil, fmt.Errorf("invalid bag rule %q", cfg.Game.BagRule)
	}

	dbAddr := net.JoinHostPort(cfg.Database.Host, strconv.Itoa(cfg.Database.Port))
	controlCfg := lobby.DefaultControlConfig(dbAddr)
	controlCfg.MaxFrameSize = cfg.Database.MaxFrameSize
	controlCfg.DialTimeout = cfg.Lobby.DialTimeout
	controlCfg.CallTimeout = cfg.Lobby.RequestTimeout
	control := lobby.NewControlLink(controlCfg, logger)

	tickets := ticket.New(cfg.Game.TicketSecret, cfg.Game.TicketTTL, clk)
	coord := coordinator.New(coordinator.Config{
		ListenHost:    cfg.Game.ListenHost,
		AdvertiseHost: cfg.Game.AdvertiseHost,
		PortMin:       cfg.Game.PortMin,
		PortMax:       cfg.Game.PortMax,
		JoinTimeout:   cfg.Game.JoinTimeout,
		MaxFrameSize:  cfg.Lobby.MaxFrameSize,
		Encoding:      cfg.Game.Encoding,
		DropMs:        cfg.Game.TickMs,
		BagRule:       bag,
	}, rnd, tickets, logger)

	hubManager := sse.NewHubManager(logger)
	broadcaster := sse.NewBroadcaster(hubManager, logger)
	coord.SetObserver(broadcaster.PublishGameMessage)

	server := lobby.NewServer(lobby.Config{
		Host:            cfg.Lobby.Host,
		Port:            cfg.Lobby.Port,
		DatabaseAddr:    dbAddr,
		MaxFrameSize:    cfg.Lobby.MaxFrameSize,
		MaxArtifactSize: cfg.Marketplace.MaxArtifactSize,
		DialTimeout:     cfg.Lobby.DialTimeout,
		RequestTimeout:  cfg.Lobby.RequestTimeout,
		UploadTimeout:   cfg.Lobby.UploadTimeout,
		CloseAckTimeout: cfg.Lobby.CloseAckTimeout,
	}, coord, blobs, rnd, broadcaster, control, logger)
	coord.OnGameEnd(server.ReportGameEnd)

	router := api.NewRouter(api.RouterConfig{
		Logger:       logger,
		Database:     control,
		Games:        coord,
		HubManager:   hubManager,
		Sessions:     server.Directory().Len,
		MaxFrameSize: cfg.Lobby.MaxFrameSize,
	})
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiCfg := api.DefaultServerConfig()
		apiCfg.Host = cfg.API.Host
		apiCfg.Port = cfg.API.Port
		apiServer = api.NewServer(router, apiCfg, logger)
	}

	sched, err := scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	if cfg.Lobby.HubCleanup > 0 {
		if err := sched.Add(scheduler.HubCleanupJob(hubManager, cfg.Lobby.HubCleanup, logger)); err != nil {
			return nil, err
		}
	}

	return &Lobby{
		Blobs:       blobs,
		Clock:       clk,
		Random:      rnd,
		Tickets:     tickets,
		Coordinator: coord,
		Control:     control,
		HubManager:  hubManager,
		Broadcaster: broadcaster,
		Server:      server,
		Router:      router,
		API:         apiServer,
		Scheduler:   sched,
		logger:      logger,
	}, nil
}

// Run serves the lobby port and the status API until ctx is cancelled,
// then shuts everything down
func (l *Lobby) Run(ctx context.Context) error {
	l.Scheduler.Start()
	defer func() {
		if err := l.Scheduler.Shutdown(); err != nil {
			l.logger.Warn("scheduler shutdown failed", slog.String("error", err.Error()))
		}
		l.Coordinator.Shutdown()
		l.HubManager.CloseAll()
		if err := l.Control.Close(); err != nil {
			l.logger.Debug("control link close failed", slog.String("error", err.Error()))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.API != nil {
		apiDone := make(chan struct{})
		go func() {
			defer close(apiDone)
			if err := runUntilDone(runCtx, l.API.Start, l.API.Shutdown); err != nil {
				l.logger.Error("status api failed", slog.String("error", err.Error()))
				cancel()
			}
		}()
		defer func() { <-apiDone }()
	}

	return runUntilDone(runCtx, l.Server.Start, l.Server.Shutdown)
}

// runUntilDone serves until ctx ends or serving stops, then calls shutdown
func runUntilDone(ctx context.Context, start func(context.Context) error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	var serveErr error
	served := false
	select {
	case serveErr = <-errCh:
		served = true
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		return err
	}
	if !served {
		serveErr = <-errCh
	}
	return serveErr
}
