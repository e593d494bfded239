package api

import (
	"context"

	"github.com/lysyi3m/rss-digest/app/archive"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []feed.ChannelItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ArticleStats interface {
	GetArticleStats(ctx context.Context) (int, int, error)
}

type Settings interface {
	GetSetting(ctx context.Context, key, fallback string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type Deps struct {
	FeedRepo      database.FeedRepository
	ArticleRepo   ArticleStats
	RecipientRepo database.RecipientRepository
	SettingsRepo  Settings
	Archive       *archive.Archive
	ConfigCache   *feed.ConfigCache
	Scheduler     tasks.TaskSchedulerInterface
	BaseURL       string
	Version       string
	FromName      string
}

type Handler struct {
	feedRepo      database.FeedRepository
	articleRepo   ArticleStats
	recipientRepo database.RecipientRepository
	settingsRepo  Settings
	archive       *archive.Archive
	configCache   *feed.ConfigCache
	scheduler     tasks.TaskSchedulerInterface
	generator     GeneratorInterface
	baseURL       string
	version       string
	title         string
}

type feedJSON struct {
	ID            int64   `json:"id"`
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Enabled       bool    `json:"enabled"`
	LastFetchedAt *string `json:"last_fetched_at"`
	AddedAt       string  `json:"added_at"`
}

type addFeedRequest struct {
	URL      string `json:"url" binding:"required"`
	Category string `json:"category"`
}

type updateFeedRequest struct {
	URL      *string `json:"url"`
	Category *string `json:"category"`
	Enabled  *bool   `json:"enabled"`
}

type recipientsRequest struct {
	Emails []string `json:"emails"`
}

type recipientRequest struct {
	Email string `json:"email" binding:"required"`
}

type introRequest struct {
	Intro string `json:"intro"`
}
