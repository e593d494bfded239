package runner

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lysyi3m/rss-digest/app/archive"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/mailer"
	"github.com/lysyi3m/rss-digest/app/pipeline"
)

// Components is everything the binaries build from one configuration.
type Components struct {
	Feeds       *database.FeedStore
	Articles    *database.ArticleStore
	Recipients  *database.RecipientStore
	Settings    *database.SettingsStore
	ConfigCache *feed.ConfigCache
	Archive     *archive.Archive
	Runner      *Runner
}

func Wire(c *cfg.Cfg, db *database.DB) (*Components, error) {
	feeds := database.NewFeedStore(db)
	articles := database.NewArticleStore(db)
	recipients := database.NewRecipientStore(db)
	settings := database.NewSettingsStore(db)

	configCache := feed.NewConfigCache(c.FeedsFile)
	if err := configCache.Run(); err != nil {
		slog.Warn("Failed to load feeds file, filters disabled", "path", c.FeedsFile, "error", err)
	}

	httpClient := &http.Client{}

	ingester := pipeline.NewIngester(feeds, articles, feed.NewFetcher(httpClient, feed.NewParser(), c.UserAgent), pipeline.Options{
		FallbackURLs: c.FeedURLs,
		Concurrency:  c.FetchConcurrency,
		Rate:         c.FetchRate,
		Timeout:      c.FetchTimeout,
	}).WithFilters(configCache, feed.NewFilterer())

	if c.ExtractEmptySummaries {
		ingester = ingester.WithExtractor(feed.NewContentExtractor(httpClient, c.UserAgent))
	}

	composer, err := digest.NewComposer(c.FromName, c.SubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest composer: %w", err)
	}

	store := archive.New(c.DigestsDir)

	r := New(Deps{
		Ingester:   ingester,
		Composer:   composer,
		Archive:    store,
		Mailer:     mailer.NewFromCfg(c),
		Articles:   articles,
		Recipients: recipients,
		Settings:   settings,
	}, Options{
		MaxEntriesPerFeed:  c.MaxEntriesPerFeed,
		MaxItems:           c.MaxItems,
		MaxSummaryChars:    c.MaxSummaryChars,
		FallbackRecipients: c.EmailTo,
		ReplyTo:            c.ReplyTo,
		Individually:       c.Individually(),
	})

	return &Components{
		Feeds:       feeds,
		Articles:    articles,
		Recipients:  recipients,
		Settings:    settings,
		ConfigCache: configCache,
		Archive:     store,
		Runner:      r,
	}, nil
}

// WithOptions returns a copy of the runner with changed options.
func (r *Runner) WithOptions(change func(*Options)) *Runner {
	opts := r.opts
	change(&opts)
	return &Runner{deps: r.deps, opts: opts}
}
