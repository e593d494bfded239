package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-digest/app/feed"
)

type FeedUpserter interface {
	UpsertFeed(ctx context.Context, url, category string, enabled bool) (int64, error)
}

// SyncFeedsTask reloads the seed file and upserts every feed it declares
// into the registry. Feeds missing from the file are left alone.
type SyncFeedsTask struct {
	Task
	configCache *feed.ConfigCache
	feedRepo    FeedUpserter
}

func NewSyncFeedsTask(configCache *feed.ConfigCache, feedRepo FeedUpserter) *SyncFeedsTask {
	return &SyncFeedsTask{
		Task:        NewTask(TaskTypeSyncFeeds, configCache.Path(), DefaultMaxRetries),
		configCache: configCache,
		feedRepo:    feedRepo,
	}
}

func (t *SyncFeedsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.configCache.Run(); err != nil {
		return fmt.Errorf("failed to load feeds file: %w", err)
	}

	synced := 0
	for _, feedConfig := range t.configCache.GetConfigs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := t.feedRepo.UpsertFeed(ctx, feedConfig.URL, feedConfig.Category, feedConfig.IsEnabled()); err != nil {
			slog.Error("Task failed", "type", string(t.Type), "feed", feedConfig.URL, "error", err)
			return fmt.Errorf("failed to sync feed %s: %w", feedConfig.URL, err)
		}
		synced++
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"file", t.Name,
		"feeds", synced,
		"duration", t.GetDuration())

	return nil
}
