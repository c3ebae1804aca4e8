package postgres

import (
	"encoding/json"
	"time"

	"github.com/mcoot/gamelobby-go/internal/model"
)

type userRecord struct {
	Realm        string `gorm:"primaryKey;size:16"`
	Username     string `gorm:"primaryKey;size:64"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func (r userRecord) toModel() *model.User {
	return &model.User{
		Realm:        model.Realm(r.Realm),
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

// artifactRecord keeps insertion order in its serial Seq column.
// The version history is stored as JSON text.
type artifactRecord struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"uniqueIndex;size:128;not null"`
	Publisher   string `gorm:"index;size:64;not null"`
	Description string
	Version     string `gorm:"size:64;not null"`
	BlobKey     string `gorm:"not null"`
	Size        int64
	Versions    string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (artifactRecord) TableName() string { return "artifacts" }

func newArtifactRecord(a *model.Artifact) (artifactRecord, error) {
	versions, err := json.Marshal(a.Versions)
	if err != nil {
		return artifactRecord{}, err
	}
	return artifactRecord{
		Name:        a.Name,
		Publisher:   a.Publisher,
		Description: a.Description,
		Version:     a.Version,
		BlobKey:     a.BlobKey,
		Size:        a.Size,
		Versions:    string(versions),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}, nil
}

func (r artifactRecord) toModel() (*model.Artifact, error) {
	a := &model.Artifact{
		Name:        r.Name,
		Publisher:   r.Publisher,
		Description: r.Description,
		Version:     r.Version,
		BlobKey:     r.BlobKey,
		Size:        r.Size,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Versions != "" {
		if err := json.Unmarshal([]byte(r.Versions), &a.Versions); err != nil {
			return nil, err
		}
	}
	return a, nil
}

type reviewRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ArtifactName string `gorm:"index;size:128;not null"`
	Reviewer     string `gorm:"size:64;not null"`
	Rating       int    `gorm:"not null"`
	Comment      string
	Timestamp    time.Time
}

func (reviewRecord) TableName() string { return "reviews" }

func (r reviewRecord) toModel() model.Review {
	return model.Review{
		ArtifactName: r.ArtifactName,
		Reviewer:     r.Reviewer,
		Rating:       r.Rating,
		Comment:      r.Comment,
		Timestamp:    r.Timestamp,
	}
}

// documentRecord is a single-row table holding the lobby document
type documentRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Body      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (documentRecord) TableName() string { return "lobby_document" }

const documentRowID = 1
