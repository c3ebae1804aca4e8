// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage"
)

// Suite runs the storage contract against the backend returned by Storage.
// Backend suites embed it and set Storage in their SetupTest.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func artifact(name, publisher, version string) *model.Artifact {
	return &model.Artifact{
		Name:      name,
		Publisher: publisher,
		Version:   version,
		BlobKey:   name + "/" + version + ".bin",
		Size:      3,
		Versions: []model.ArtifactVersion{
			{Version: version, BlobKey: name + "/" + version + ".bin", Size: 3, CreatedAt: epoch},
		},
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

// User tests

func (s *Suite) TestSaveAndGetUser() {
	user := &model.User{Realm: model.RealmPlayer, Username: "alice", PasswordHash: "h", CreatedAt: epoch}
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, user))

	got, err := s.Storage.GetUser(s.Ctx, model.RealmPlayer, "alice")
	s.Require().NoError(err)
	s.Equal("alice", got.Username)
	s.Equal("h", got.PasswordHash)
}

func (s *Suite) TestUsersArePartitionedByRealm() {
	user := &model.User{Realm: model.RealmPlayer, Username: "alice", PasswordHash: "h", CreatedAt: epoch}
	s.Require().NoError(s.Storage.SaveUser(s.Ctx, user))

	_, err := s.Storage.GetUser(s.Ctx, model.RealmDeveloper, "alice")
	s.ErrorIs(err, model.ErrUserNotFound)
}

// Artifact tests

func (s *Suite) TestSaveAndGetArtifact() {
	s.Require().NoError(s.Storage.SaveArtifact(s.Ctx, artifact("tetris", "dev", "v1")))

	got, err := s.Storage.GetArtifact(s.Ctx, "tetris")
	s.Require().NoError(err)
	s.Equal("dev", got.Publisher)
	s.Equal("v1", got.Version)
	s.Len(got.Versions, 1)
}

func (s *Suite) TestGetArtifactNotFound() {
	_, err := s.Storage.GetArtifact(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestListArtifactsKeepsFirstPublishOrder() {
	s.Require().NoError(s.Storage.SaveArtifact(s.Ctx, artifact("b-game", "dev", "v1")))
	s.Require().NoError(s.Storage.SaveArtifact(s.Ctx, artifact("a-game", "dev", "v1")))
	// An update must not move the artifact to the end
	s.Require().NoError(s.Storage.SaveArtifact(s.Ctx, artifact("b-game", "dev", "v2")))

	list, err := s.Storage.ListArtifacts(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("b-game", list[0].Name)
	s.Equal("v2", list[0].Version)
	s.Equal("a-game", list[1].Name)
}

func (s *Suite) TestDeleteArtifact() {
	s.Require().NoError(s.Storage.SaveArtifact(s.Ctx, artifact("tetris", "dev", "v1")))

	s.Require().NoError(s.Storage.DeleteArtifact(s.Ctx, "tetris"))

	_, err := s.Storage.GetArtifact(s.Ctx, "tetris")
	s.ErrorIs(err, model.ErrGameNotFound)
	list, err := s.Storage.ListArtifacts(s.Ctx)
	s.Require().NoError(err)
	s.Empty(list)
	s.ErrorIs(s.Storage.DeleteArtifact(s.Ctx, "tetris"), model.ErrGameNotFound)
}

// Review tests

func (s *Suite) TestReviewsAreAppendOnlyInOrder() {
	for i, comment := range []string{"first", "second", "third"} {
		s.Require().NoError(s.Storage.AppendReview(s.Ctx, &model.Review{
			ArtifactName: "tetris",
			Reviewer:     "alice",
			Rating:       i + 1,
			Comment:      comment,
			Timestamp:    epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	reviews, err := s.Storage.ListReviews(s.Ctx, "tetris")
	s.Require().NoError(err)
	s.Require().Len(reviews, 3)
	s.Equal("first", reviews[0].Comment)
	s.Equal("third", reviews[2].Comment)

	other, err := s.Storage.ListReviews(s.Ctx, "other")
	s.Require().NoError(err)
	s.Empty(other)
}

// Document tests

func (s *Suite) TestLoadDocumentWhenEmpty() {
	doc, err := s.Storage.LoadDocument(s.Ctx)
	s.Require().NoError(err)
	s.Empty(doc.Rooms)
}

func (s *Suite) TestSaveAndLoadDocument() {
	doc := &model.Document{
		Rooms: []model.Room{{
			ID:         "123456",
			Creator:    "alice",
			Players:    []string{"alice"},
			Visibility: model.VisibilityPublic,
			Status:     model.RoomWaiting,
			GameKind:   "tetris",
		}},
		OnlineUsers: []model.Session{{Username: "alice", Realm: model.RealmPlayer, Status: model.StatusInRoom}},
		SavedAt:     epoch,
	}
	s.Require().NoError(s.Storage.SaveDocument(s.Ctx, doc))

	doc.Rooms = nil
	s.Require().NoError(s.Storage.SaveDocument(s.Ctx, &model.Document{
		Rooms:       []model.Room{{ID: "654321", Creator: "bob", Players: []string{"bob"}}},
		OnlineUsers: doc.OnlineUsers,
		SavedAt:     epoch,
	}))

	loaded, err := s.Storage.LoadDocument(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(loaded.Rooms, 1)
	s.Equal(model.RoomID("654321"), loaded.Rooms[0].ID)
	s.Require().Len(loaded.OnlineUsers, 1)
	s.Equal("alice", loaded.OnlineUsers[0].Username)
}
