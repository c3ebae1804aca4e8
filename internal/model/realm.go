package model

// Realm partitions credentials and presence. Players and developers may
// share a username without colliding.
type Realm string

const (
	RealmPlayer    Realm = "player"
	RealmDeveloper Realm = "developer"
)

// Sender values carried in the envelope's sender field
const (
	SenderClient   = "client"
	SenderGameDev  = "game_dev"
	SenderLobby    = "lobby"
	SenderDatabase = "database"
)

// Realms lists every realm in lock order
func Realms() []Realm {
	return []Realm{RealmPlayer, RealmDeveloper}
}

// RealmForSender maps a client sender tag onto its realm
func RealmForSender(sender string) (Realm, error) {
	switch sender {
	case SenderClient:
		return RealmPlayer, nil
	case SenderGameDev:
		return RealmDeveloper, nil
	default:
		return "", ErrInvalidRealm
	}
}

// Sender returns the envelope sender tag used by clients of this realm
func (r Realm) Sender() string {
	if r == RealmDeveloper {
		return SenderGameDev
	}
	return SenderClient
}

// Valid reports whether r is a known realm
func (r Realm) Valid() bool {
	return r == RealmPlayer || r == RealmDeveloper
}
