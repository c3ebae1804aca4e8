package database

import (
	"context"
	"log/slog"

	"github.com/mcoot/gamelobby-go/internal/model"
	"github.com/mcoot/gamelobby-go/internal/services/reviews"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// uploadParams reads [name, description, blob_key, size]. The lobby
// appends the blob key and size after storing the bytes.
func uploadParams(cmd wire.Command) (name, description, blobKey string, size int64, err error) {
	if name, err = cmd.Param(0); err != nil {
		return
	}
	description = cmd.OptionalParam(1)
	if blobKey, err = cmd.Param(2); err != nil {
		return
	}
	n, err := cmd.IntParam(3)
	if err != nil {
		return
	}
	return name, description, blobKey, int64(n), nil
}

func (b *Backend) uploadGame(ctx context.Context, c *call) (wire.Response, error) {
	return b.recordGame(ctx, c, false)
}

func (b *Backend) updateGame(ctx context.Context, c *call) (wire.Response, error) {
	return b.recordGame(ctx, c, true)
}

func (b *Backend) recordGame(ctx context.Context, c *call, isUpdate bool) (wire.Response, error) {
	name, description, blobKey, size, err := uploadParams(c.cmd)
	if err != nil {
		return wire.Response{}, err
	}
	artifact, err := b.marketplace.Record(ctx, c.username, name, description, blobKey, size, isUpdate)
	if err != nil {
		return wire.Response{}, err
	}

	msg := wire.MsgUploadSuccess
	if isUpdate {
		msg = wire.MsgUpdateSuccess
	}
	return wire.Success(model.SenderDatabase, msg, artifact.Name, artifact.Version), nil
}

// deleteGame: [name]. Live rooms bound to the game are finished and their
// players told the room closed. The reply lists the verdict of each finished room.
func (b *Backend) deleteGame(ctx context.Context, c *call) (wire.Response, error) {
	name, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	if _, err := b.marketplace.Delete(ctx, c.username, name); err != nil {
		return wire.Response{}, err
	}

	finished := b.rooms.FinishForGame(name, model.GameResults{
		Winner: model.WinnerNone,
		Reason: model.ReasonDeleted,
	})
	var n notices
	ended := make([]model.GameEnding, 0, len(finished))
	for _, room := range finished {
		ended = append(ended, model.GameEnding{
			RoomID: room.ID,
			Winner: model.WinnerNone,
			Reason: model.ReasonDeleted,
		})
		b.players().ClearInvitesForRoom(room.ID)
		for _, p := range room.Players {
			b.setStatus(p, model.StatusIdle)
			n.player(p, b.event(model.EventRoomClosed, room, "", model.ReasonDeleted))
		}
	}

	if len(ended) > 0 {
		b.logger.InfoContext(ctx, "closed rooms of deleted game",
			slog.String("name", name),
			slog.Int("rooms", len(ended)))
	}
	return n.attach(wire.Success(model.SenderDatabase, wire.MsgDeleteSuccess, name, ended)), nil
}

// downloadGame: [name, version?]
func (b *Backend) downloadGame(ctx context.Context, c *call) (wire.Response, error) {
	name, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	ticket, err := b.marketplace.Resolve(ctx, name, c.cmd.OptionalParam(1))
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgDownloadReady, ticket), nil
}

func (b *Backend) listAllGames(ctx context.Context, _ *call) (wire.Response, error) {
	listings, err := b.Games(ctx)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgGames, listings), nil
}

func (b *Backend) listOwnGames(ctx context.Context, c *call) (wire.Response, error) {
	artifacts, err := b.marketplace.ListOwn(ctx, c.username)
	if err != nil {
		return wire.Response{}, err
	}
	listings, err := b.listings(ctx, artifacts)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgGames, listings), nil
}

// Games returns every published game with its rating
func (b *Backend) Games(ctx context.Context) ([]model.ArtifactListing, error) {
	artifacts, err := b.marketplace.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return b.listings(ctx, artifacts)
}

func (b *Backend) listings(ctx context.Context, artifacts []*model.Artifact) ([]model.ArtifactListing, error) {
	out := make([]model.ArtifactListing, 0, len(artifacts))
	for _, a := range artifacts {
		summary, err := b.reviews.Summary(ctx, a.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, a.Listing(summary))
	}
	return out, nil
}

// leaveReview: [name, rating, comment?]
func (b *Backend) leaveReview(ctx context.Context, c *call) (wire.Response, error) {
	name, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	rating, err := c.cmd.IntParam(1)
	if err != nil {
		return wire.Response{}, err
	}
	review, err := b.reviews.Submit(ctx, name, c.username, rating, c.cmd.OptionalParam(2))
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgReviewSuccess, review), nil
}

// getReviews: [name]
func (b *Backend) getReviews(ctx context.Context, c *call) (wire.Response, error) {
	name, err := c.cmd.Param(0)
	if err != nil {
		return wire.Response{}, err
	}
	if _, err := b.marketplace.Get(ctx, name); err != nil {
		return wire.Response{}, err
	}
	list, err := b.reviews.List(ctx, name)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Success(model.SenderDatabase, wire.MsgReviews, name, list, reviews.Summarize(list)), nil
}
