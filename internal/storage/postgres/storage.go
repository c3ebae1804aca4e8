package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// Storage is a Postgres-backed implementation of the storage interface
type Storage struct {
	db *gorm.DB
}

// New connects to Postgres and migrates the schema
func New(cfg Config) (*Storage, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewWithDB(db)
}

// NewWithDB wraps an open gorm handle and migrates the schema
func NewWithDB(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(
		&userRecord{},
		&artifactRecord{},
		&reviewRecord{},
		&documentRecord{},
	); err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// User operations

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	rec := userRecord{
		Realm:        string(user.Realm),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *Storage) GetUser(ctx context.Context, realm model.Realm, username string) (*model.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).
		Where("realm = ? AND username = ?", string(realm), username).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}
	return rec.toModel(), nil
}

// Artifact operations

func (s *Storage) SaveArtifact(ctx context.Context, artifact *model.Artifact) error {
	rec, err := newArtifactRecord(artifact)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing artifactRecord
		err := tx.Where("name = ?", artifact.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}
		rec.Seq = existing.Seq
		return tx.Save(&rec).Error
	})
}

func (s *Storage) GetArtifact(ctx context.Context, name string) (*model.Artifact, error) {
	var rec artifactRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}
	return rec.toModel()
}

func (s *Storage) DeleteArtifact(ctx context.Context, name string) error {
	result := s.db.WithContext(ctx).Where("name = ?", name).Delete(&artifactRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrGameNotFound
	}
	return nil
}

func (s *Storage) ListArtifacts(ctx context.Context) ([]*model.Artifact, error) {
	var recs []artifactRecord
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	artifacts := make([]*model.Artifact, 0, len(recs))
	for _, rec := range recs {
		a, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// Review operations

func (s *Storage) AppendReview(ctx context.Context, review *model.Review) error {
	rec := reviewRecord{
		ArtifactName: review.ArtifactName,
		Reviewer:     review.Reviewer,
		Rating:       review.Rating,
		Comment:      review.Comment,
		Timestamp:    review.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Storage) ListReviews(ctx context.Context, artifactName string) ([]model.Review, error) {
	var recs []reviewRecord
	err := s.db.WithContext(ctx).
		Where("artifact_name = ?", artifactName).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	reviews := make([]model.Review, 0, len(recs))
	for _, rec := range recs {
		reviews = append(reviews, rec.toModel())
	}
	return reviews, nil
}

// Document operations

func (s *Storage) SaveDocument(ctx context.Context, doc *model.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	rec := documentRecord{ID: documentRowID, Body: string(body)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&rec).Error
}

func (s *Storage) LoadDocument(ctx context.Context) (*model.Document, error) {
	var rec documentRecord
	err := s.db.WithContext(ctx).First(&rec, documentRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(rec.Body), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
