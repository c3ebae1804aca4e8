package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/gamelobby-go/internal/blobstore"
	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// MaxNameBytes bounds artifact names
const MaxNameBytes = 64

// Service manages published game artifacts and their versions. The bytes
// themselves live in the blob store; records only carry blob keys.
type Service struct {
	storage storage.Storage
	blobs   blobstore.Store
	random  random.Random
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new marketplace service
func New(storage storage.Storage, blobs blobstore.Store, random random.Random, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		blobs:   blobs,
		random:  random,
		clock:   clock,
		logger:  logger.With(slog.String("component", "marketplace")),
	}
}

// ValidateName checks an artifact name is usable as a marketplace key
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: game name must be non-empty without surrounding spaces", model.ErrBadRequest)
	}
	if len(name) > MaxNameBytes {
		return fmt.Errorf("%w: game name longer than %d bytes", model.ErrBadRequest, MaxNameBytes)
	}
	return nil
}

// Publish records a new artifact whose bytes are already stored at blobKey
func (s *Service) Publish(ctx context.Context, publisher, name, description, blobKey string, size int64) (*model.Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	_, err := s.storage.GetArtifact(ctx, name)
	if err == nil {
		return nil, model.ErrGameExists
	}
	if !errors.Is(err, model.ErrGameNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	version := model.ArtifactVersion{
		Version:   s.random.UUID(),
		BlobKey:   blobKey,
		Size:      size,
		CreatedAt: now,
	}
	artifact := &model.Artifact{
		Name:        name,
		Publisher:   publisher,
		Description: description,
		Version:     version.Version,
		BlobKey:     blobKey,
		Size:        size,
		Versions:    []model.ArtifactVersion{version},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.storage.SaveArtifact(ctx, artifact); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "artifact published",
		slog.String("name", name),
		slog.String("publisher", publisher),
		slog.String("version", artifact.Version))
	return artifact, nil
}

// Update replaces the bytes of an artifact and issues a new version token.
// An empty description leaves the current one in place. Earlier versions
// stay resolvable for rooms bound to them.
func (s *Service) Update(ctx context.Context, publisher, name, description, blobKey string, size int64) (*model.Artifact, error) {
	artifact, err := s.owned(ctx, publisher, name)
	if err != nil {
		return nil, err
	}

	token := s.random.UUID()
	for _, taken := artifact.Lookup(token); taken; _, taken = artifact.Lookup(token) {
		token = s.random.UUID()
	}

	now := s.clock.Now()
	artifact.Versions = append(artifact.Versions, model.ArtifactVersion{
		Version:   token,
		BlobKey:   blobKey,
		Size:      size,
		CreatedAt: now,
	})
	artifact.Version = token
	artifact.BlobKey = blobKey
	artifact.Size = size
	if description != "" {
		artifact.Description = description
	}
	artifact.UpdatedAt = now

	if err := s.storage.SaveArtifact(ctx, artifact); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "artifact updated",
		slog.String("name", name),
		slog.String("version", token),
		slog.Int("versions", len(artifact.Versions)))
	return artifact, nil
}

// Delete removes an artifact and every stored version of its bytes
func (s *Service) Delete(ctx context.Context, publisher, name string) (*model.Artifact, error) {
	artifact, err := s.owned(ctx, publisher, name)
	if err != nil {
		return nil, err
	}
	if err := s.storage.DeleteArtifact(ctx, name); err != nil {
		return nil, err
	}

	for _, v := range artifact.Versions {
		if err := s.blobs.Delete(ctx, v.BlobKey); err != nil {
			s.logger.WarnContext(ctx, "failed to delete artifact blob",
				slog.String("name", name),
				slog.String("blob_key", v.BlobKey),
				slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "artifact deleted", slog.String("name", name))
	return artifact, nil
}

// Get retrieves an artifact by name
func (s *Service) Get(ctx context.Context, name string) (*model.Artifact, error) {
	return s.storage.GetArtifact(ctx, name)
}

// Resolve returns the download ticket for a version of name. An empty
// version means the current one.
func (s *Service) Resolve(ctx context.Context, name, version string) (model.DownloadTicket, error) {
	artifact, err := s.storage.GetArtifact(ctx, name)
	if err != nil {
		return model.DownloadTicket{}, err
	}
	if version == "" {
		version = artifact.Version
	}
	v, ok := artifact.Lookup(version)
	if !ok {
		return model.DownloadTicket{}, model.ErrVersionNotFound
	}
	return model.DownloadTicket{
		Name:    artifact.Name,
		Version: v.Version,
		BlobKey: v.BlobKey,
		Size:    v.Size,
	}, nil
}

// ListAll returns every artifact in first-publish order
func (s *Service) ListAll(ctx context.Context) ([]*model.Artifact, error) {
	return s.storage.ListArtifacts(ctx)
}

// ListOwn returns the artifacts of publisher in first-publish order
func (s *Service) ListOwn(ctx context.Context, publisher string) ([]*model.Artifact, error) {
	all, err := s.storage.ListArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	own := make([]*model.Artifact, 0, len(all))
	for _, a := range all {
		if a.Publisher == publisher {
			own = append(own, a)
		}
	}
	return own, nil
}

func (s *Service) owned(ctx context.Context, publisher, name string) (*model.Artifact, error) {
	artifact, err := s.storage.GetArtifact(ctx, name)
	if err != nil {
		return nil, err
	}
	if artifact.Publisher != publisher {
		return nil, model.ErrNotPublisher
	}
	return artifact, nil
}

// Record publishes or updates name after the lobby has stored its bytes
func (s *Service) Record(ctx context.Context, publisher, name, description, blobKey string, size int64, isUpdate bool) (*model.Artifact, error) {
	if isUpdate {
		return s.Update(ctx, publisher, name, description, blobKey, size)
	}
	return s.Publish(ctx, publisher, name, description, blobKey, size)
}
