package database

import (
	"time"
)

// Feed represents a feed record in the database
type Feed struct {
	ID            int64
	URL           string
	Category      string
	Enabled       bool
	Title         string
	ETag          string
	LastModified  string
	LastFetchedAt *time.Time
	AddedAt       time.Time
}

// DisplayName is the feed title when known, else its URL.
func (f Feed) DisplayName() string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}

// Article represents a stored feed entry. FeedURL, FeedTitle and Category
// are joined from the owning feed.
type Article struct {
	ID        int64
	FeedID    *int64
	GUID      string
	Title     string
	Link      string
	Summary   string
	AISummary string
	Published *time.Time
	// PublishedRaw is the feed's own date text, kept when it could not be parsed.
	PublishedRaw string
	Sent         bool
	CreatedAt    time.Time

	FeedURL   string
	FeedTitle string
	Category  string
}

type Recipient struct {
	Email   string
	AddedAt time.Time
}
