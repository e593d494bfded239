package database

import (
	"context"
	"time"
)

// FeedUpdate carries the optional fields of a feed edit. Nil fields are left unchanged.
type FeedUpdate struct {
	URL      *string
	Category *string
	Enabled  *bool
}

// FetchState is what a successful fetch writes back to the feed row.
type FetchState struct {
	Title        string
	ETag         string
	LastModified string
	FetchedAt    time.Time
}

type FeedRepository interface {
	ListFeeds(ctx context.Context, enabledOnly bool) ([]Feed, error)
	GetFeed(ctx context.Context, id int64) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	GetFeedCount(ctx context.Context) (int, error)

	AddFeed(ctx context.Context, url, category string) (int64, bool, error)
	UpsertFeed(ctx context.Context, url, category string, enabled bool) (int64, error)
	UpdateFeed(ctx context.Context, id int64, update FeedUpdate) error
	UpdateFetchState(ctx context.Context, id int64, state FetchState) error
	DeleteFeed(ctx context.Context, id int64) error
}

type ArticleRepository interface {
	ArticleExists(ctx context.Context, feedID int64, link string) (bool, error)
	InsertArticle(ctx context.Context, article *Article) (bool, error)
	GetUnsentArticles(ctx context.Context, limit int) ([]Article, error)
	MarkSent(ctx context.Context, ids []int64) (int64, error)
	GetArticleStats(ctx context.Context) (int, int, error)
}

type RecipientRepository interface {
	ListRecipients(ctx context.Context) ([]Recipient, error)
	AddRecipient(ctx context.Context, email string) (bool, error)
	DeleteRecipient(ctx context.Context, email string) error
	SetRecipients(ctx context.Context, emails []string) (int, error)
}

type SettingsRepository interface {
	GetSetting(ctx context.Context, key, fallback string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLease(ctx context.Context, name, token string) error
}
