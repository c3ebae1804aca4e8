package lobby

import (
	"sort"
	"sync"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// Directory indexes the logged-in sessions of this lobby by realm and
// username
type Directory struct {
	mu       sync.RWMutex
	sessions map[model.Realm]map[string]*Session
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	d := &Directory{sessions: make(map[model.Realm]map[string]*Session)}
	for _, realm := range model.Realms() {
		d.sessions[realm] = make(map[string]*Session)
	}
	return d
}

// Add binds username to s, replacing any stale entry
func (d *Directory) Add(realm model.Realm, username string, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if users, ok := d.sessions[realm]; ok {
		users[username] = s
	}
}

// Remove unbinds username if it is still bound to s
func (d *Directory) Remove(realm model.Realm, username string, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if users, ok := d.sessions[realm]; ok && users[username] == s {
		delete(users, username)
	}
}

// Lookup returns the session of username
func (d *Directory) Lookup(realm model.Realm, username string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[realm][username]
	return s, ok
}

// Send writes resp to the client of username
func (d *Directory) Send(realm model.Realm, username string, resp wire.Response) error {
	s, ok := d.Lookup(realm, username)
	if !ok {
		return model.ErrSessionNotFound
	}
	return s.send(resp)
}

// Online returns the usernames of realm in sorted order
func (d *Directory) Online(realm model.Realm) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sessions[realm]))
	for name := range d.sessions[realm] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of logged-in sessions across realms
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, users := range d.sessions {
		n += len(users)
	}
	return n
}
