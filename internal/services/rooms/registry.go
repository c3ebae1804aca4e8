package rooms

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
	"github.com/mcoot/gamelobby-go/internal/model"
)

const (
	// RoomIDLength is the length of generated room ids
	RoomIDLength = 6
	// RoomIDAlphabet is the characters used in room ids
	RoomIDAlphabet = "0123456789"
)

// Config holds configuration for the room registry
type Config struct {
	// HistorySize bounds the number of finished rooms kept
	HistorySize int
}

// DefaultConfig returns default room registry configuration
func DefaultConfig() Config {
	return Config{
		HistorySize: 50,
	}
}

// LeaveResult describes what a leave did to the room
type LeaveResult struct {
	Room    model.Room
	Deleted bool
	// NewHost is set when the leaving player was host and another player remains
	NewHost string
}

// Registry owns the live rooms and the bounded history of finished ones
type Registry struct {
	clock  clock.Clock
	random random.Random
	cfg    Config

	mu      sync.RWMutex
	rooms   map[model.RoomID]*model.Room
	order   []model.RoomID
	members map[string]model.RoomID
	history []model.Room
}

// New creates an empty room registry
func New(clock clock.Clock, random random.Random, cfg Config) *Registry {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Registry{
		clock:   clock,
		random:  random,
		cfg:     cfg,
		rooms:   make(map[model.RoomID]*model.Room),
		members: make(map[string]model.RoomID),
	}
}

// Create opens a room with creator as its only player, bound to the given
// game kind and version
func (r *Registry) Create(creator string, visibility model.Visibility, gameKind, gameVersion string) (model.Room, error) {
	if !visibility.Valid() {
		return model.Room{}, fmt.Errorf("%w: visibility must be public or private", model.ErrBadRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[creator]; ok {
		return model.Room{}, model.ErrAlreadyIn
	}

	var id model.RoomID
	for {
		id = model.RoomID(r.random.String(RoomIDLength, RoomIDAlphabet))
		if _, taken := r.rooms[id]; !taken {
			break
		}
	}

	now := r.clock.Now()
	room := &model.Room{
		ID:          id,
		Creator:     creator,
		Players:     []string{creator},
		Visibility:  visibility,
		Status:      model.RoomWaiting,
		GameKind:    gameKind,
		GameVersion: gameVersion,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.rooms[id] = room
	r.order = append(r.order, id)
	r.members[creator] = id

	return room.Clone(), nil
}

// Join seats username in roomID. invited must be true to enter a private room.
func (r *Registry) Join(roomID model.RoomID, username string, invited bool) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return model.Room{}, model.ErrNoRoom
	}
	if _, ok := r.members[username]; ok {
		return model.Room{}, model.ErrAlreadyIn
	}
	if room.Status == model.RoomInGame || room.Status == model.RoomFinished {
		return model.Room{}, model.ErrRoomInGame
	}
	if room.Visibility == model.VisibilityPrivate && !invited {
		return model.Room{}, model.ErrRoomPrivate
	}
	if room.IsFull() {
		return model.Room{}, model.ErrRoomFull
	}

	room.Players = append(room.Players, username)
	room.RefreshStatus()
	room.UpdatedAt = r.clock.Now()
	r.members[username] = roomID

	return room.Clone(), nil
}

// Leave removes username from its room. An emptied room is deleted; when the
// host leaves the remaining player becomes host.
func (r *Registry) Leave(username string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.members[username]
	if !ok {
		return LeaveResult{}, model.ErrNotInRoom
	}
	room := r.rooms[roomID]
	if room.Status == model.RoomInGame {
		return LeaveResult{}, model.ErrRoomInGame
	}

	wasHost := room.Host() == username
	for i, p := range room.Players {
		if p == username {
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			break
		}
	}
	delete(r.members, username)

	if len(room.Players) == 0 {
		r.removeLocked(roomID)
		return LeaveResult{Room: room.Clone(), Deleted: true}, nil
	}

	result := LeaveResult{}
	if wasHost {
		result.NewHost = room.Host()
	}
	room.RefreshStatus()
	room.UpdatedAt = r.clock.Now()
	result.Room = room.Clone()

	return result, nil
}

// CanInvite checks that inviter hosts roomID and that it has a free seat
func (r *Registry) CanInvite(inviter string, roomID model.RoomID) (model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return model.Room{}, model.ErrNoRoom
	}
	if room.Host() != inviter {
		return model.Room{}, model.ErrNotHost
	}
	if room.Status == model.RoomInGame {
		return model.Room{}, model.ErrRoomInGame
	}
	if room.IsFull() {
		return model.Room{}, model.ErrRoomFull
	}
	return room.Clone(), nil
}

// Start moves a full, ready room into play. Only the host may start.
func (r *Registry) Start(roomID model.RoomID, requester string) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return model.Room{}, model.ErrNoRoom
	}
	if room.Host() != requester {
		return model.Room{}, model.ErrNotHost
	}
	if room.Status == model.RoomInGame {
		return model.Room{}, model.ErrRoomInGame
	}
	if len(room.Players) != model.RoomCapacity || room.Status != model.RoomReady {
		return model.Room{}, model.ErrRoomNotReady
	}

	room.Status = model.RoomInGame
	room.Results = nil
	room.UpdatedAt = r.clock.Now()

	return room.Clone(), nil
}

// Abort returns an in-game room to Ready after its instance failed to start
func (r *Registry) Abort(roomID model.RoomID) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return model.Room{}, model.ErrNoRoom
	}
	if room.Status == model.RoomInGame {
		room.Status = model.RoomReady
		room.RefreshStatus()
		room.UpdatedAt = r.clock.Now()
	}
	return room.Clone(), nil
}

// Finish marks roomID Finished with results and moves it to the history.
// Its players are no longer seated anywhere.
func (r *Registry) Finish(roomID model.RoomID, results model.GameResults) (model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		return model.Room{}, model.ErrNoRoom
	}
	return r.finishLocked(roomID, results), nil
}

// FinishForGame finishes every live room bound to gameKind
func (r *Registry) FinishForGame(gameKind string, results model.GameResults) []model.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []model.RoomID
	for _, id := range r.order {
		if r.rooms[id].GameKind == gameKind {
			ids = append(ids, id)
		}
	}

	finished := make([]model.Room, 0, len(ids))
	for _, id := range ids {
		finished = append(finished, r.finishLocked(id, results))
	}
	return finished
}

// RemoveCreatedBy deletes every live room created by username that still
// seats them and returns those rooms as they were before removal. A room
// the creator left belongs to its new host and is kept.
func (r *Registry) RemoveCreatedBy(username string) []model.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []model.RoomID
	for _, id := range r.order {
		if room := r.rooms[id]; room.Creator == username && room.Has(username) {
			ids = append(ids, id)
		}
	}

	removed := make([]model.Room, 0, len(ids))
	for _, id := range ids {
		removed = append(removed, r.rooms[id].Clone())
		r.removeLocked(id)
	}
	return removed
}

// Get returns a copy of roomID
func (r *Registry) Get(roomID model.RoomID) (model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return model.Room{}, model.ErrNoRoom
	}
	return room.Clone(), nil
}

// RoomOf returns the live room username is seated in
func (r *Registry) RoomOf(username string) (model.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.members[username]
	if !ok {
		return model.Room{}, false
	}
	return r.rooms[id].Clone(), true
}

// List returns every live room in creation order
func (r *Registry) List() []model.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Room, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rooms[id].Clone())
	}
	return out
}

// History returns finished rooms, oldest first
func (r *Registry) History() []model.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Room, 0, len(r.history))
	for _, room := range r.history {
		out = append(out, room.Clone())
	}
	return out
}

// PruneHistory drops finished rooms older than maxAge and returns how many
// were removed
func (r *Registry) PruneHistory(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.history[:0]
	for _, room := range r.history {
		if r.clock.Since(room.UpdatedAt) > maxAge {
			continue
		}
		kept = append(kept, room)
	}
	pruned := len(r.history) - len(kept)
	r.history = kept
	return pruned
}

// Restore loads persisted state after a restart. Rooms that were live when
// the document was saved have lost their sessions, so they are finished
// as aborted.
func (r *Registry) Restore(live, history []model.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms = make(map[model.RoomID]*model.Room)
	r.order = nil
	r.members = make(map[string]model.RoomID)
	r.history = nil

	for _, room := range history {
		r.appendHistoryLocked(room.Clone())
	}
	now := r.clock.Now()
	for _, room := range live {
		c := room.Clone()
		c.Status = model.RoomFinished
		c.Results = &model.GameResults{
			Winner:     model.WinnerNone,
			Reason:     model.ReasonAborted,
			FinishedAt: now,
		}
		c.UpdatedAt = now
		r.appendHistoryLocked(c)
	}
}

// Len returns the number of live rooms
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *Registry) finishLocked(roomID model.RoomID, results model.GameResults) model.Room {
	room := r.rooms[roomID]
	now := r.clock.Now()
	if results.FinishedAt.IsZero() {
		results.FinishedAt = now
	}
	room.Status = model.RoomFinished
	room.Results = &results
	room.UpdatedAt = now

	finished := room.Clone()
	r.removeLocked(roomID)
	r.appendHistoryLocked(finished)
	return finished.Clone()
}

func (r *Registry) removeLocked(roomID model.RoomID) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, p := range room.Players {
		if r.members[p] == roomID {
			delete(r.members, p)
		}
	}
	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) appendHistoryLocked(room model.Room) {
	r.history = append(r.history, room)
	if over := len(r.history) - r.cfg.HistorySize; over > 0 {
		r.history = append([]model.Room(nil), r.history[over:]...)
	}
}
