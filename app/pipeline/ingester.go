package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
)

// Ingester fetches feeds and stores entries it has not seen before.
type Ingester struct {
	feeds     FeedStore
	articles  ArticleStore
	fetcher   Fetcher
	opts      Options
	filters   FilterSource
	filterer  *feed.Filterer
	extractor Extractor
}

func NewIngester(feeds FeedStore, articles ArticleStore, fetcher Fetcher, opts Options) *Ingester {
	opts.Concurrency = max(opts.Concurrency, 1)
	return &Ingester{
		feeds:    feeds,
		articles: articles,
		fetcher:  fetcher,
		opts:     opts,
	}
}

// WithFilters applies the keyword filters declared for each feed before dedup.
func (i *Ingester) WithFilters(filters FilterSource, filterer *feed.Filterer) *Ingester {
	i.filters = filters
	i.filterer = filterer
	return i
}

// WithExtractor fills empty summaries from the article page.
func (i *Ingester) WithExtractor(extractor Extractor) *Ingester {
	i.extractor = extractor
	return i
}

// RunOnce fetches every source once and returns the newly stored articles.
// Per-feed and per-entry failures are logged and skipped. An error is returned
// only when no source list could be built or the context was cancelled.
func (i *Ingester) RunOnce(ctx context.Context, explicitURLs []string, maxEntriesPerFeed int) ([]database.Article, error) {
	articles, _, err := i.Run(ctx, explicitURLs, maxEntriesPerFeed)
	return articles, err
}

// Run is RunOnce with the per-source reports.
func (i *Ingester) Run(ctx context.Context, explicitURLs []string, maxEntriesPerFeed int) ([]database.Article, []SourceReport, error) {
	sources, err := i.resolveSources(ctx, explicitURLs)
	if err != nil {
		return nil, nil, err
	}
	if len(sources) == 0 {
		return nil, nil, nil
	}

	var limiter *rate.Limiter
	if i.opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(i.opts.Rate), 1)
	}

	reports := make([]SourceReport, len(sources))
	collected := make([][]database.Article, len(sources))

	var g errgroup.Group
	g.SetLimit(i.opts.Concurrency)

	for idx, src := range sources {
		g.Go(func() error {
			reports[idx], collected[idx] = i.ingestSource(ctx, src, limiter, maxEntriesPerFeed)
			return nil
		})
	}
	g.Wait()

	var (
		articles []database.Article
		failed   int
	)
	for idx, report := range reports {
		if report.Err != nil {
			failed++
		}
		articles = append(articles, collected[idx]...)
	}

	slog.Info("Ingestion completed",
		"sources", len(sources),
		"failed_sources", failed,
		"new", len(articles))

	if err := ctx.Err(); err != nil {
		return articles, reports, fmt.Errorf("ingestion interrupted: %w", err)
	}

	return articles, reports, nil
}

func (i *Ingester) resolveSources(ctx context.Context, explicitURLs []string) ([]source, error) {
	if urls := dedupURLs(explicitURLs); len(urls) > 0 {
		sources := make([]source, 0, len(urls))
		for _, u := range urls {
			src := source{url: u}
			known, err := i.feeds.GetFeedByURL(ctx, u)
			if err != nil {
				slog.Warn("Failed to look up feed, ingesting without registry id", "feed", u, "error", err)
			} else if known != nil {
				src = sourceFromFeed(*known)
			}
			sources = append(sources, src)
		}
		return sources, nil
	}

	fallback := dedupURLs(i.opts.FallbackURLs)

	feeds, err := i.feeds.ListFeeds(ctx, true)
	if err != nil {
		if len(fallback) == 0 {
			return nil, fmt.Errorf("failed to read feeds: %w", err)
		}
		slog.Error("Failed to read feeds, using FEED_URLS", "error", err)
		return adHocSources(fallback), nil
	}

	if len(feeds) == 0 {
		if len(fallback) == 0 {
			slog.Info("No feeds registered and no FEED_URLS configured")
			return nil, nil
		}
		return adHocSources(fallback), nil
	}

	sources := make([]source, 0, len(feeds))
	for _, f := range feeds {
		if f.URL != "" {
			sources = append(sources, sourceFromFeed(f))
		}
	}
	return sources, nil
}

func (i *Ingester) ingestSource(ctx context.Context, src source, limiter *rate.Limiter, maxEntries int) (SourceReport, []database.Article) {
	report := SourceReport{URL: src.url, FeedID: src.feedID}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			report.Err = err
			return report, nil
		}
	}

	slog.Debug("Fetching feed", "feed", src.url, "feed_id", idString(src.feedID))

	result := i.fetcher.Fetch(ctx, src.url, feed.FetchOptions{
		Timeout:      i.opts.Timeout,
		ETag:         src.etag,
		LastModified: src.lastModified,
		MaxEntries:   maxEntries,
	})
	if result.HadError {
		report.Err = cmp.Or(result.Err, fmt.Errorf("fetch failed"))
		slog.Error("Failed to fetch feed", "feed", src.url, "status", result.Status, "error", report.Err)
		return report, nil
	}

	if result.NotModified {
		report.NotModified = true
		i.saveFetchState(ctx, src, result, true)
		return report, nil
	}

	entries := result.Entries
	report.Fetched = len(entries)
	if i.filters != nil && i.filterer != nil {
		entries = i.filterer.Run(entries, i.filters.GetConfig(src.url))
		report.Filtered = report.Fetched - len(entries)
	}

	feedTitle := cmp.Or(src.title, result.Title)

	var inserted []database.Article
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		outcome, article := i.ingestEntry(ctx, src, feedTitle, entry)
		report.Outcomes = append(report.Outcomes, outcome)
		if article != nil {
			inserted = append(inserted, *article)
		}
	}

	// New validators are kept only once every entry is stored. Otherwise the
	// next conditional fetch would answer 304 and hide the missing entries.
	complete := ctx.Err() == nil && report.Count(OutcomeFailed) == 0
	if !complete {
		slog.Warn("Feed partially stored, keeping previous validators", "feed", src.url, "failed", report.Count(OutcomeFailed))
	}
	i.saveFetchState(ctx, src, result, complete)

	slog.Info("Feed processed",
		"feed", src.url,
		"total", report.Fetched,
		"filtered", report.Filtered,
		"duplicates", report.Count(OutcomeDuplicate),
		"failed", report.Count(OutcomeFailed),
		"new", len(inserted))

	return report, inserted
}

func (i *Ingester) saveFetchState(ctx context.Context, src source, result feed.FetchResult, complete bool) {
	if src.feedID == nil {
		return
	}

	state := database.FetchState{
		Title:        result.Title,
		ETag:         src.etag,
		LastModified: src.lastModified,
		FetchedAt:    time.Now().UTC(),
	}
	if complete {
		state.ETag = result.ETag
		state.LastModified = result.LastModified
	}

	if err := i.feeds.UpdateFetchState(context.WithoutCancel(ctx), *src.feedID, state); err != nil {
		slog.Warn("Failed to store fetch state", "feed", src.url, "error", err)
	}
}

func (i *Ingester) ingestEntry(ctx context.Context, src source, feedTitle string, entry feed.Entry) (EntryOutcome, *database.Article) {
	outcome := EntryOutcome{Link: entry.Link}

	if src.feedID != nil {
		exists, err := i.articles.ArticleExists(ctx, *src.feedID, entry.Link)
		if err != nil {
			slog.Debug("Article existence check failed, attempting insert", "feed", src.url, "link", entry.Link, "error", err)
		} else if exists {
			outcome.Outcome = OutcomeDuplicate
			return outcome, nil
		}
	}

	summary := entry.Summary
	if strings.TrimSpace(summary) == "" && i.extractor != nil && entry.Link != "" {
		content, err := i.extractor.Extract(ctx, entry.Link, i.opts.Timeout)
		if err != nil {
			slog.Debug("Failed to extract content", "link", entry.Link, "error", err)
		} else {
			summary = content
		}
	}

	article := &database.Article{
		FeedID:       src.feedID,
		GUID:         entry.GUID,
		Title:        cmp.Or(entry.Title, entry.Link),
		Link:         entry.Link,
		Summary:      summary,
		Published:    entry.Published,
		PublishedRaw: entry.PublishedRaw,
		FeedURL:      src.url,
		FeedTitle:    feedTitle,
		Category:     src.category,
	}

	ok, err := i.articles.InsertArticle(ctx, article)
	if err != nil {
		slog.Error("Failed to insert article", "feed", src.url, "link", entry.Link, "error", err)
		outcome.Outcome = OutcomeFailed
		outcome.Err = err
		return outcome, nil
	}
	if !ok {
		outcome.Outcome = OutcomeDuplicate
		return outcome, nil
	}

	outcome.Outcome = OutcomeInserted
	return outcome, article
}

func sourceFromFeed(f database.Feed) source {
	id := f.ID
	return source{
		feedID:       &id,
		url:          f.URL,
		title:        f.Title,
		category:     f.Category,
		etag:         f.ETag,
		lastModified: f.LastModified,
	}
}

func adHocSources(urls []string) []source {
	sources := make([]source, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, source{url: u})
	}
	return sources
}

func dedupURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func idString(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}
