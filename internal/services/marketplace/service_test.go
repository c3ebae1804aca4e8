package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby-go/internal/blobstore/local"
	"github.com/mcoot/gamelobby-go/internal/dependencies/mocks"
	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/storage/memory"
	"github.com/mcoot/gamelobby-go/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	blobs   *local.Store
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	blobs, err := local.New(s.T().TempDir())
	s.Require().NoError(err)
	s.blobs = blobs
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.blobs, s.random, s.clock, testutil.NopLogger())
}

func (s *ServiceSuite) publish(name, blobKey string) *model.Artifact {
	s.Require().NoError(s.blobs.Put(s.ctx, blobKey, []byte(name)))
	artifact, err := s.service.Publish(s.ctx, "dev", name, "a game", blobKey, int64(len(name)))
	s.Require().NoError(err)
	return artifact
}

// Publish tests

func (s *ServiceSuite) TestPublish() {
	s.random.QueueUUID("T1")

	artifact := s.publish("tetris", "tetris/u1.bin")

	s.Equal("T1", artifact.Version)
	s.Equal("dev", artifact.Publisher)
	s.Equal("tetris/u1.bin", artifact.BlobKey)
	s.Len(artifact.Versions, 1)

	stored, err := s.service.Get(s.ctx, "tetris")
	s.Require().NoError(err)
	s.Equal("T1", stored.Version)
}

func (s *ServiceSuite) TestPublishDuplicateFails() {
	s.publish("tetris", "tetris/u1.bin")

	_, err := s.service.Publish(s.ctx, "other", "tetris", "", "tetris/u2.bin", 1)
	s.ErrorIs(err, model.ErrGameExists)
}

func (s *ServiceSuite) TestPublishRejectsBadName() {
	_, err := s.service.Publish(s.ctx, "dev", " tetris", "", "k/u.bin", 1)
	s.ErrorIs(err, model.ErrBadRequest)
}

// Update tests

func (s *ServiceSuite) TestUpdateIssuesNewVersion() {
	s.random.QueueUUID("T1", "T2")
	s.publish("tetris", "tetris/u1.bin")
	s.clock.Advance(time.Minute)

	artifact, err := s.service.Update(s.ctx, "dev", "tetris", "", "tetris/u2.bin", 9)
	s.Require().NoError(err)

	s.Equal("T2", artifact.Version)
	s.Equal("a game", artifact.Description)
	s.Equal(int64(9), artifact.Size)
	s.Len(artifact.Versions, 2)
	s.Equal(s.clock.Now(), artifact.UpdatedAt)

	old, err := s.service.Resolve(s.ctx, "tetris", "T1")
	s.Require().NoError(err)
	s.Equal("tetris/u1.bin", old.BlobKey)
}

func (s *ServiceSuite) TestUpdateSkipsReusedToken() {
	s.random.QueueUUID("T1", "T1", "T3")
	s.publish("tetris", "tetris/u1.bin")

	artifact, err := s.service.Update(s.ctx, "dev", "tetris", "new", "tetris/u2.bin", 1)
	s.Require().NoError(err)
	s.Equal("T3", artifact.Version)
	s.Equal("new", artifact.Description)
}

func (s *ServiceSuite) TestUpdateErrors() {
	s.publish("tetris", "tetris/u1.bin")

	_, err := s.service.Update(s.ctx, "mallory", "tetris", "", "x/u.bin", 1)
	s.ErrorIs(err, model.ErrNotPublisher)

	_, err = s.service.Update(s.ctx, "dev", "snake", "", "x/u.bin", 1)
	s.ErrorIs(err, model.ErrGameNotFound)
}

// Delete tests

func (s *ServiceSuite) TestDeleteRemovesRecordAndBlobs() {
	s.publish("tetris", "tetris/u1.bin")
	s.Require().NoError(s.blobs.Put(s.ctx, "tetris/u2.bin", []byte("v2")))
	_, err := s.service.Update(s.ctx, "dev", "tetris", "", "tetris/u2.bin", 2)
	s.Require().NoError(err)

	_, err = s.service.Delete(s.ctx, "dev", "tetris")
	s.Require().NoError(err)

	_, err = s.service.Get(s.ctx, "tetris")
	s.ErrorIs(err, model.ErrGameNotFound)
	_, err = s.blobs.Get(s.ctx, "tetris/u1.bin")
	s.ErrorIs(err, model.ErrBlobNotFound)
	_, err = s.blobs.Get(s.ctx, "tetris/u2.bin")
	s.ErrorIs(err, model.ErrBlobNotFound)
}

func (s *ServiceSuite) TestDeleteByOtherFails() {
	s.publish("tetris", "tetris/u1.bin")

	_, err := s.service.Delete(s.ctx, "mallory", "tetris")
	s.ErrorIs(err, model.ErrNotPublisher)
}

// Resolve and list tests

func (s *ServiceSuite) TestResolveCurrentAndUnknownVersion() {
	s.random.QueueUUID("T1")
	s.publish("tetris", "tetris/u1.bin")

	ticket, err := s.service.Resolve(s.ctx, "tetris", "")
	s.Require().NoError(err)
	s.Equal(model.DownloadTicket{Name: "tetris", Version: "T1", BlobKey: "tetris/u1.bin", Size: 6}, ticket)

	_, err = s.service.Resolve(s.ctx, "tetris", "T9")
	s.ErrorIs(err, model.ErrVersionNotFound)
}

func (s *ServiceSuite) TestListOwnKeepsOrder() {
	s.publish("tetris", "tetris/u1.bin")
	_, err := s.service.Publish(s.ctx, "other", "snake", "", "snake/u1.bin", 1)
	s.Require().NoError(err)
	s.publish("pong", "pong/u1.bin")

	all, err := s.service.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	own, err := s.service.ListOwn(s.ctx, "dev")
	s.Require().NoError(err)
	s.Require().Len(own, 2)
	s.Equal("tetris", own[0].Name)
	s.Equal("pong", own[1].Name)
}
