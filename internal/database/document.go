package database

import (
	"context"
	"log/slog"

	"github.com/mcoot/gamelobby-go/internal/model"
)

func (b *Backend) document() *model.Document {
	return &model.Document{
		Rooms:              b.rooms.List(),
		OnlineUsers:        b.registry(model.RealmPlayer).List(),
		GameDevOnlineUsers: b.registry(model.RealmDeveloper).List(),
		GameDevRooms:       []model.Room{},
		History:            b.rooms.History(),
		SavedAt:            b.clock.Now(),
	}
}

// persist saves the presence and room document. Callers hold the presence
// and room locks.
func (b *Backend) persist(ctx context.Context) error {
	return b.storage.SaveDocument(ctx, b.document())
}

// Restore loads the saved document at start-up. Sessions do not survive a
// restart; rooms that were live are moved to the history as aborted.
func (b *Backend) Restore(ctx context.Context) error {
	unlock := b.acquire(lockPresence | lockRooms)
	defer unlock()

	doc, err := b.storage.LoadDocument(ctx)
	if err != nil {
		return err
	}
	b.rooms.Restore(doc.Rooms, doc.History)

	b.logger.InfoContext(ctx, "restored document",
		slog.Int("dropped_sessions", len(doc.OnlineUsers)+len(doc.GameDevOnlineUsers)),
		slog.Int("closed_rooms", len(doc.Rooms)),
		slog.Int("history", len(b.rooms.History())))
	return b.persist(ctx)
}
