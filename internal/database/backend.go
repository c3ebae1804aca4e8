// Package database is the tier that serialises every state change of the
// platform: credentials, presence, rooms, the marketplace and reviews.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/services/auth"
	"github.com/mcoot/gamelobby-go/internal/services/marketplace"
	"github.com/mcoot/gamelobby-go/internal/services/presence"
	"github.com/mcoot/gamelobby-go/internal/services/reviews"
	"github.com/mcoot/gamelobby-go/internal/services/rooms"
	"github.com/mcoot/gamelobby-go/internal/storage"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Peer is the state of one lobby connection. A connection carries at most
// one logged-in user. Only the goroutine serving the connection touches it.
type Peer struct {
	ID       string
	Username string
	Realm    model.Realm
}

// LoggedIn reports whether a user is bound to the connection
func (p *Peer) LoggedIn() bool {
	return p.Username != ""
}

func (p *Peer) reset() {
	p.Username = ""
	p.Realm = ""
}

// lockSet names the locks a command needs. Locks are always taken in
// declaration order, which is the platform-wide order.
type lockSet uint8

const (
	lockCredentials lockSet = 1 << iota
	lockPresence
	lockRooms
	lockMarketplace
	lockReviews

	lockCount = 5
)

// access is who may issue a command
type access int

const (
	accessAnyone access = iota
	accessLoggedIn
	accessPlayer
	accessDeveloper
	accessLobby
	// accessLoggedInOrLobby also admits the lobby's control link
	accessLoggedInOrLobby
)

type handlerFunc func(ctx context.Context, c *call) (wire.Response, error)

type handler struct {
	locks   lockSet
	access  access
	persist bool
	fn      handlerFunc
}

// call is one command being handled
type call struct {
	peer     *Peer
	cmd      wire.Command
	username string
	realm    model.Realm
}

// Backend handles commands one at a time per lock set
type Backend struct {
	auth        *auth.Service
	presence    map[model.Realm]*presence.Registry
	rooms       *rooms.Registry
	marketplace *marketplace.Service
	reviews     *reviews.Service
	storage     storage.Storage
	clock       clock.Clock
	logger      *slog.Logger

	locks    [lockCount]sync.Mutex
	handlers map[string]handler
}

// New creates a backend over the given services
func New(
	authService *auth.Service,
	players *presence.Registry,
	developers *presence.Registry,
	roomRegistry *rooms.Registry,
	market *marketplace.Service,
	reviewService *reviews.Service,
	storage storage.Storage,
	clock clock.Clock,
	logger *slog.Logger,
) *Backend {
	b := &Backend{
		auth: authService,
		presence: map[model.Realm]*presence.Registry{
			model.RealmPlayer:    players,
			model.RealmDeveloper: developers,
		},
		rooms:       roomRegistry,
		marketplace: market,
		reviews:     reviewService,
		storage:     storage,
		clock:       clock,
		logger:      logger.With(slog.String("component", "database")),
	}
	b.handlers = b.routes()
	return b
}

func (b *Backend) routes() map[string]handler {
	return map[string]handler{
		wire.CmdRegister:     {locks: lockCredentials, access: accessAnyone, fn: b.register},
		wire.CmdLogin:        {locks: lockCredentials | lockPresence, access: accessAnyone, persist: true, fn: b.login},
		wire.CmdLogout:       {locks: lockPresence | lockRooms, access: accessLoggedIn, persist: true, fn: b.logout},
		wire.CmdServerClosed: {locks: lockPresence | lockRooms, access: accessAnyone, persist: true, fn: b.serverClosed},
		wire.CmdCreateRoom:   {locks: lockPresence | lockRooms | lockMarketplace, access: accessPlayer, persist: true, fn: b.createRoom},
		wire.CmdJoinRoom:     {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.joinRoom},
		wire.CmdLeaveRoom:    {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.leaveRoom},
		wire.CmdInvitePlayer: {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.invitePlayer},
		wire.CmdAccept:       {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.accept},
		wire.CmdDecline:      {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.decline},
		wire.CmdCheck:        {locks: lockPresence, access: accessPlayer, fn: b.check},
		wire.CmdShowStatus:   {locks: lockPresence | lockRooms, access: accessLoggedInOrLobby, fn: b.showStatus},
		wire.CmdStartGame:    {locks: lockPresence | lockRooms | lockMarketplace, access: accessPlayer, persist: true, fn: b.startGame},
		wire.CmdGameOver:     {locks: lockPresence | lockRooms, access: accessPlayer, persist: true, fn: b.gameOver},
		wire.CmdGameEnded:    {locks: lockPresence | lockRooms, access: accessLobby, persist: true, fn: b.gameEnded},
		wire.CmdGameAborted:  {locks: lockPresence | lockRooms, access: accessLobby, persist: true, fn: b.gameAborted},
		wire.CmdUploadGame:   {locks: lockMarketplace, access: accessDeveloper, fn: b.uploadGame},
		wire.CmdUpdateGame:   {locks: lockMarketplace, access: accessDeveloper, fn: b.updateGame},
		wire.CmdDeleteGame:   {locks: lockPresence | lockRooms | lockMarketplace, access: accessDeveloper, persist: true, fn: b.deleteGame},
		wire.CmdDownloadGame: {locks: lockMarketplace, access: accessLoggedIn, fn: b.downloadGame},
		wire.CmdListAllGames: {locks: lockMarketplace | lockReviews, access: accessLoggedInOrLobby, fn: b.listAllGames},
		wire.CmdListOwnGames: {locks: lockMarketplace | lockReviews, access: accessDeveloper, fn: b.listOwnGames},
		wire.CmdLeaveReview:  {locks: lockMarketplace | lockReviews, access: accessPlayer, fn: b.leaveReview},
		wire.CmdGetReviews:   {locks: lockMarketplace | lockReviews, access: accessLoggedInOrLobby, fn: b.getReviews},
	}
}

// Handle processes one command from peer and returns the reply. Errors are
// returned as error envelopes.
func (b *Backend) Handle(ctx context.Context, peer *Peer, cmd wire.Command) wire.Response {
	h, ok := b.handlers[cmd.Command]
	if !ok {
		return b.fail(ctx, cmd, fmt.Errorf("%w: %q", model.ErrUnknownCommand, cmd.Command))
	}

	c, err := b.authorize(peer, cmd, h.access)
	if err != nil {
		return b.fail(ctx, cmd, err)
	}

	unlock := b.acquire(h.locks)
	defer unlock()

	resp, err := h.fn(ctx, c)
	if err != nil {
		return b.fail(ctx, cmd, err)
	}
	if h.persist {
		if err := b.persist(ctx); err != nil {
			b.logger.ErrorContext(ctx, "failed to persist document",
				slog.String("command", cmd.Command),
				slog.String("error", err.Error()))
			return b.fail(ctx, cmd, err)
		}
	}
	return resp
}

// Disconnect releases whatever the user bound to peer held. It is used when
// a lobby connection ends without SERVER_CLOSED.
func (b *Backend) Disconnect(ctx context.Context, peer *Peer) wire.Response {
	if !peer.LoggedIn() {
		return wire.Success(model.SenderDatabase, wire.MsgServerClosedAck)
	}
	cmd := wire.NewCommand(peer.Realm.Sender(), wire.CmdServerClosed, peer.Username, string(peer.Realm))
	return b.Handle(ctx, peer, cmd)
}

func (b *Backend) authorize(peer *Peer, cmd wire.Command, a access) (*call, error) {
	c := &call{peer: peer, cmd: cmd, username: peer.Username, realm: peer.Realm}
	lobby := cmd.Sender == model.SenderLobby

	switch a {
	case accessAnyone:
		return c, nil
	case accessLobby:
		if !lobby {
			return nil, model.ErrForbidden
		}
		return c, nil
	case accessLoggedInOrLobby:
		if lobby || peer.LoggedIn() {
			return c, nil
		}
		return nil, model.ErrAuthRequired
	}

	if !peer.LoggedIn() {
		return nil, model.ErrAuthRequired
	}
	switch {
	case a == accessPlayer && peer.Realm != model.RealmPlayer:
		return nil, model.ErrForbidden
	case a == accessDeveloper && peer.Realm != model.RealmDeveloper:
		return nil, model.ErrForbidden
	}
	return c, nil
}

// acquire takes the locks of set in the fixed order and returns the release
func (b *Backend) acquire(set lockSet) func() {
	var held []int
	for i := 0; i < lockCount; i++ {
		if set&(1<<i) != 0 {
			b.locks[i].Lock()
			held = append(held, i)
		}
	}
	return func() {
		for j := len(held) - 1; j >= 0; j-- {
			b.locks[held[j]].Unlock()
		}
	}
}

func (b *Backend) fail(ctx context.Context, cmd wire.Command, err error) wire.Response {
	resp := wire.Failure(model.SenderDatabase, err)
	if resp.Code == wire.CodeInternal {
		b.logger.ErrorContext(ctx, "command failed",
			slog.String("command", cmd.Command),
			slog.String("error", err.Error()))
	} else {
		b.logger.DebugContext(ctx, "command rejected",
			slog.String("command", cmd.Command),
			slog.String("code", resp.Code),
			slog.String("error", err.Error()))
	}
	return resp
}

// registry returns the presence registry of realm
func (b *Backend) registry(realm model.Realm) *presence.Registry {
	return b.presence[realm]
}

func (b *Backend) players() *presence.Registry {
	return b.presence[model.RealmPlayer]
}

// event builds an update notification for a room event
func (b *Backend) event(typ model.EventType, room model.Room, username, reason string) wire.Response {
	return wire.NewResponse(model.SenderDatabase, wire.StatusUpdate, string(typ), model.RoomEvent{
		Type:      typ,
		RoomID:    room.ID,
		Username:  username,
		Room:      &room,
		Results:   room.Results,
		Reason:    reason,
		Timestamp: b.clock.Now(),
	})
}

// notices collects notifications for users other than the requester
type notices []wire.Notification

func (n *notices) player(target string, resp wire.Response) {
	*n = append(*n, wire.Notification{Target: target, Realm: model.RealmPlayer, Response: resp})
}

// attach returns resp carrying the collected notifications
func (n notices) attach(resp wire.Response) wire.Response {
	resp.Notify = append(resp.Notify, n...)
	return resp
}

// PruneHistory drops finished rooms older than maxAge
func (b *Backend) PruneHistory(ctx context.Context, maxAge time.Duration) (int, error) {
	unlock := b.acquire(lockRooms)
	defer unlock()

	pruned := b.rooms.PruneHistory(maxAge)
	if pruned == 0 {
		return 0, nil
	}
	b.logger.InfoContext(ctx, "pruned room history", slog.Int("rooms", pruned))
	return pruned, b.persist(ctx)
}
