package presence

import (
	"sync"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// Registry tracks the online sessions of one realm. Every mutation happens
// under the registry's writer lock so a status change and the invite queue
// it affects are always consistent.
type Registry struct {
	realm model.Realm
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[string]*model.Session
	order    []string
}

// New creates an empty registry for realm
func New(realm model.Realm, clock clock.Clock) *Registry {
	return &Registry{
		realm:    realm,
		clock:    clock,
		sessions: make(map[string]*model.Session),
	}
}

// Realm returns the realm this registry serves
func (r *Registry) Realm() model.Realm {
	return r.realm
}

// Login creates an idle session. At most one session exists per username.
func (r *Registry) Login(username, address string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[username]; ok {
		return model.Session{}, model.ErrAlreadyLoggedIn
	}

	session := &model.Session{
		Username:       username,
		Realm:          r.realm,
		Address:        address,
		Status:         model.StatusIdle,
		PendingInvites: []model.Invite{},
		LoggedInAt:     r.clock.Now(),
	}
	r.sessions[username] = session
	r.order = append(r.order, username)

	return session.Clone(), nil
}

// Logout removes the session and returns its final state
func (r *Registry) Logout(username string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[username]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	delete(r.sessions, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return session.Clone(), nil
}

// UpdateStatus moves a session to status. Leaving idle drops the user's
// pending invites since invites only survive while the invitee is idle.
func (r *Registry) UpdateStatus(username string, status model.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[username]
	if !ok {
		return model.ErrSessionNotFound
	}
	session.Status = status
	if status != model.StatusIdle {
		session.PendingInvites = []model.Invite{}
	}
	return nil
}

// EnqueueInvite queues invite on the invitee's session. The invitee must be
// idle and must not already hold the same (inviter, room) invite.
func (r *Registry) EnqueueInvite(invite model.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[invite.Invitee]
	if !ok {
		return model.ErrSessionNotFound
	}
	if session.Status != model.StatusIdle {
		return model.ErrNotIdle
	}
	for _, pending := range session.PendingInvites {
		if pending.Matches(invite.Inviter, invite.RoomID) {
			return model.ErrDuplicateInvite
		}
	}

	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = r.clock.Now()
	}
	session.PendingInvites = append(session.PendingInvites, invite)
	return nil
}

// PopInvite removes and returns the first pending invite of invitee
// satisfying match
func (r *Registry) PopInvite(invitee string, match func(model.Invite) bool) (model.Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[invitee]
	if !ok {
		return model.Invite{}, model.ErrSessionNotFound
	}
	for i, pending := range session.PendingInvites {
		if match(pending) {
			session.PendingInvites = append(session.PendingInvites[:i], session.PendingInvites[i+1:]...)
			return pending, nil
		}
	}
	return model.Invite{}, model.ErrNoInvite
}

// Invites returns a copy of the pending invites of username
func (r *Registry) Invites(username string) ([]model.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[username]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return append([]model.Invite{}, session.PendingInvites...), nil
}

// ClearInvitesForRoom drops every pending invite that refers to roomID and
// returns the dropped invites
func (r *Registry) ClearInvitesForRoom(roomID model.RoomID) []model.Invite {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []model.Invite
	for _, session := range r.sessions {
		kept := session.PendingInvites[:0]
		for _, pending := range session.PendingInvites {
			if pending.RoomID == roomID {
				dropped = append(dropped, pending)
				continue
			}
			kept = append(kept, pending)
		}
		session.PendingInvites = kept
	}
	return dropped
}

// ClearInvites empties the pending invites of username
func (r *Registry) ClearInvites(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[username]; ok {
		session.PendingInvites = []model.Invite{}
	}
}

// Get returns a copy of the session of username
func (r *Registry) Get(username string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[username]
	if !ok {
		return model.Session{}, false
	}
	return session.Clone(), true
}

// IsOnline reports whether username has a session
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[username]
	return ok
}

// List returns copies of every session in login order
func (r *Registry) List() []model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Session, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sessions[name].Clone())
	}
	return out
}

// Len returns the number of online sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
