package redis

import (
	"fmt"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// keys builds the Redis keys for each entity type under one prefix
type keys struct {
	prefix string
}

// user returns the key for a credential record
func (k keys) user(realm model.Realm, username string) string {
	return fmt.Sprintf("%s:user:%s:%s", k.prefix, realm, username)
}

// artifact returns the key for an artifact record
func (k keys) artifact(name string) string {
	return fmt.Sprintf("%s:artifact:%s", k.prefix, name)
}

// artifactIndex returns the key for the LIST of artifact names in publish order
func (k keys) artifactIndex() string {
	return fmt.Sprintf("%s:idx:artifacts", k.prefix)
}

// reviews returns the key for the LIST of reviews of an artifact
func (k keys) reviews(name string) string {
	return fmt.Sprintf("%s:reviews:%s", k.prefix, name)
}

// document returns the key for the lobby document
func (k keys) document() string {
	return fmt.Sprintf("%s:document", k.prefix)
}
