package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
	keys   keys
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = DefaultConfig().PingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		cfg:    cfg,
		keys:   keys{prefix: cfg.KeyPrefix},
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keys.user(user.Realm, user.Username), data, 0).Err()
}

func (s *Storage) GetUser(ctx context.Context, realm model.Realm, username string) (*model.User, error) {
	var user model.User
	if err := s.getJSON(ctx, s.keys.user(realm, username), &user, model.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

// Artifact operations

func (s *Storage) SaveArtifact(ctx context.Context, artifact *model.Artifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}

	key := s.keys.artifact(artifact.Name)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	if exists == 0 {
		pipe.RPush(ctx, s.keys.artifactIndex(), artifact.Name)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetArtifact(ctx context.Context, name string) (*model.Artifact, error) {
	var artifact model.Artifact
	if err := s.getJSON(ctx, s.keys.artifact(name), &artifact, model.ErrGameNotFound); err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (s *Storage) DeleteArtifact(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.keys.artifact(name))
	pipe.LRem(ctx, s.keys.artifactIndex(), 0, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return model.ErrGameNotFound
	}
	return nil
}

func (s *Storage) ListArtifacts(ctx context.Context) ([]*model.Artifact, error) {
	names, err := s.client.LRange(ctx, s.keys.artifactIndex(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []*model.Artifact{}, nil
	}

	artifactKeys := make([]string, len(names))
	for i, name := range names {
		artifactKeys[i] = s.keys.artifact(name)
	}

	values, err := s.client.MGet(ctx, artifactKeys...).Result()
	if err != nil {
		return nil, err
	}

	artifacts := make([]*model.Artifact, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it
			continue
		}
		var artifact model.Artifact
		if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &artifact)
	}
	return artifacts, nil
}

// Review operations

func (s *Storage) AppendReview(ctx context.Context, review *model.Review) error {
	data, err := json.Marshal(review)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keys.reviews(review.ArtifactName), data).Err()
}

func (s *Storage) ListReviews(ctx context.Context, artifactName string) ([]model.Review, error) {
	values, err := s.client.LRange(ctx, s.keys.reviews(artifactName), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	reviews := make([]model.Review, 0, len(values))
	for _, raw := range values {
		var review model.Review
		if err := json.Unmarshal([]byte(raw), &review); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// Document operations

func (s *Storage) SaveDocument(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keys.document(), data, 0).Err()
}

func (s *Storage) LoadDocument(ctx context.Context) (*model.Document, error) {
	var doc model.Document
	err := s.getJSON(ctx, s.keys.document(), &doc, errNoDocument)
	if errors.Is(err, errNoDocument) {
		return &model.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

var errNoDocument = errors.New("no document")

// getJSON loads key into v, returning notFound when the key is absent
func (s *Storage) getJSON(ctx context.Context, key string, v any, notFound error) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}
