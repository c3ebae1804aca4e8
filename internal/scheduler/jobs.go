package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// HubCleaner drops event hubs nobody is watching
type HubCleaner interface {
	CleanupEmptyHubs() int
}

// HistoryPruner drops finished rooms older than maxAge
type HistoryPruner interface {
	PruneHistory(ctx context.Context, maxAge time.Duration) (int, error)
}

// HubCleanupJob removes idle SSE hubs
func HubCleanupJob(hubs HubCleaner, interval time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "sse-hub-cleanup",
		Interval: interval,
		Run: func(context.Context) error {
			if n := hubs.CleanupEmptyHubs(); n > 0 {
				logger.Info("removed idle event hubs", slog.Int("count", n))
			}
			return nil
		},
	}
}

// HistoryPruneJob removes finished rooms past their retention
func HistoryPruneJob(pruner HistoryPruner, interval, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name:     "room-history-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := pruner.PruneHistory(ctx, retention)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("pruned finished rooms", slog.Int("count", n), slog.Duration("retention", retention))
			}
			return nil
		},
	}
}
