package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// Service is the per-realm credential store
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	hasher  Hasher

	// mu makes the exists-check and save of Register atomic
	mu sync.Mutex
}

// Config holds configuration for the auth service
type Config struct {
	// HashFunc is "bcrypt" or "sha256"
	HashFunc   string
	BcryptCost int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		HashFunc:   HashBcrypt,
		BcryptCost: 10,
	}
}

// New creates a new credential store
func New(storage storage.Storage, clock clock.Clock, cfg Config) (*Service, error) {
	hasher, err := NewHasher(cfg.HashFunc, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		storage: storage,
		clock:   clock,
		hasher:  hasher,
	}, nil
}

// NormalizeUsername returns the NFC form of username, rejecting empty
// names, names with surrounding whitespace and names over the byte limit
func NormalizeUsername(username string) (string, error) {
	if username == "" || strings.TrimSpace(username) != username {
		return "", model.ErrInvalidUsername
	}
	n := norm.NFC.String(username)
	if len(n) > model.MaxUsernameBytes {
		return "", fmt.Errorf("%w: longer than %d bytes", model.ErrInvalidUsername, model.MaxUsernameBytes)
	}
	return n, nil
}

// Register stores a new credential. The username must be free in realm.
func (s *Service) Register(ctx context.Context, realm model.Realm, username, password string) error {
	if !realm.Valid() {
		return model.ErrInvalidRealm
	}
	username, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	if password == "" {
		return model.ErrInvalidPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.storage.GetUser(ctx, realm, username)
	if err == nil {
		return model.ErrUsernameExists
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	return s.storage.SaveUser(ctx, &model.User{
		Realm:        realm,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	})
}

// Verify reports whether password matches the stored credential.
// An unknown user is not an error; it simply does not verify.
func (s *Service) Verify(ctx context.Context, realm model.Realm, username, password string) (bool, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return false, nil
	}
	user, err := s.storage.GetUser(ctx, realm, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.hasher.Compare(user.PasswordHash, password), nil
}

// Exists reports whether username is registered in realm
func (s *Service) Exists(ctx context.Context, realm model.Realm, username string) (bool, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return false, nil
	}
	_, err = s.storage.GetUser(ctx, realm, username)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}
