package pipeline

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
)

type FeedStore interface {
	ListFeeds(ctx context.Context, enabledOnly bool) ([]database.Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*database.Feed, error)
	UpdateFetchState(ctx context.Context, id int64, state database.FetchState) error
}

type ArticleStore interface {
	ArticleExists(ctx context.Context, feedID int64, link string) (bool, error)
	InsertArticle(ctx context.Context, article *database.Article) (bool, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, opts feed.FetchOptions) feed.FetchResult
}

type Extractor interface {
	Extract(ctx context.Context, link string, timeout time.Duration) (string, error)
}

// FilterSource looks up per-feed keyword filters by feed URL.
type FilterSource interface {
	GetConfig(url string) *feed.Config
}

type Options struct {
	FallbackURLs []string
	Concurrency  int
	Rate         float64 // fetches per second, 0 means unlimited
	Timeout      time.Duration
}

type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

type EntryOutcome struct {
	Link    string
	Outcome Outcome
	Err     error
}

// SourceReport summarizes one feed of a run.
type SourceReport struct {
	URL         string
	FeedID      *int64
	NotModified bool
	Err         error
	Fetched     int
	Filtered    int
	Outcomes    []EntryOutcome
}

func (r SourceReport) Count(o Outcome) int {
	n := 0
	for _, e := range r.Outcomes {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Summary totals the reports of one ingestion run.
type Summary struct {
	Sources       int
	NotModified   int
	FailedSources int
	Inserted      int
	Duplicates    int
	FailedEntries int
}

func Summarize(reports []SourceReport) Summary {
	s := Summary{Sources: len(reports)}
	for _, r := range reports {
		if r.NotModified {
			s.NotModified++
		}
		if r.Err != nil {
			s.FailedSources++
		}
		s.Inserted += r.Count(OutcomeInserted)
		s.Duplicates += r.Count(OutcomeDuplicate)
		s.FailedEntries += r.Count(OutcomeFailed)
	}
	return s
}

type source struct {
	feedID       *int64
	url          string
	title        string
	category     string
	etag         string
	lastModified string
}
