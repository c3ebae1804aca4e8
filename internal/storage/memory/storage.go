package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	users         map[userKey]*model.User
	artifacts     map[string]*model.Artifact
	artifactOrder []string
	reviews       map[string][]model.Review
	document      *model.Document
}

type userKey struct {
	realm    model.Realm
	username string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:     make(map[userKey]*model.User),
		artifacts: make(map[string]*model.Artifact),
		reviews:   make(map[string][]model.Review),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[userKey{user.Realm, user.Username}] = &u
	return nil
}

func (s *Storage) GetUser(ctx context.Context, realm model.Realm, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userKey{realm, username}]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// Artifact operations

func (s *Storage) SaveArtifact(ctx context.Context, artifact *model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[artifact.Name]; !exists {
		s.artifactOrder = append(s.artifactOrder, artifact.Name)
	}
	s.artifacts[artifact.Name] = artifact.Clone()
	return nil
}

func (s *Storage) GetArtifact(ctx context.Context, name string) (*model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[name]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return artifact.Clone(), nil
}

func (s *Storage) DeleteArtifact(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[name]; !ok {
		return model.ErrGameNotFound
	}
	delete(s.artifacts, name)
	s.artifactOrder = slices.DeleteFunc(s.artifactOrder, func(n string) bool { return n == name })
	return nil
}

func (s *Storage) ListArtifacts(ctx context.Context) ([]*model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Artifact, 0, len(s.artifactOrder))
	for _, name := range s.artifactOrder {
		result = append(result, s.artifacts[name].Clone())
	}
	return result, nil
}

// Review operations

func (s *Storage) AppendReview(ctx context.Context, review *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[review.ArtifactName] = append(s.reviews[review.ArtifactName], *review)
	return nil
}

func (s *Storage) ListReviews(ctx context.Context, artifactName string) ([]model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.reviews[artifactName]), nil
}

// Document operations

func (s *Storage) SaveDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doc
	s.document = &d
	return nil
}

func (s *Storage) LoadDocument(ctx context.Context) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.document == nil {
		return &model.Document{}, nil
	}
	d := *s.document
	return &d, nil
}
