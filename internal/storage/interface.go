package storage

import (
	"context"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// Storage defines the interface for durable data owned by the database tier
type Storage interface {
	// User operations (credential store, per realm)
	SaveUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, realm model.Realm, username string) (*model.User, error)

	// Artifact operations. ListArtifacts returns artifacts in first-publish order.
	SaveArtifact(ctx context.Context, artifact *model.Artifact) error
	GetArtifact(ctx context.Context, name string) (*model.Artifact, error)
	DeleteArtifact(ctx context.Context, name string) error
	ListArtifacts(ctx context.Context) ([]*model.Artifact, error)

	// Review operations (append-only, insertion order)
	AppendReview(ctx context.Context, review *model.Review) error
	ListReviews(ctx context.Context, artifactName string) ([]model.Review, error)

	// Lobby document operations. LoadDocument returns an empty document
	// when nothing has been saved yet.
	SaveDocument(ctx context.Context, doc *model.Document) error
	LoadDocument(ctx context.Context) (*model.Document, error)
}
