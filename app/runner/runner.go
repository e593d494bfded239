package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/mailer"
	"github.com/lysyi3m/rss-digest/app/pipeline"
)

// Runner chains ingestion, composition, archiving, delivery and mark-sent
// for one invocation. Articles are marked sent only after delivery succeeded.
type Runner struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Runner {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.MaxSummaryChars <= 0 {
		opts.MaxSummaryChars = digest.DefaultMaxSummaryChars
	}
	return &Runner{deps: deps, opts: opts}
}

func (r *Runner) Run(ctx context.Context) Result {
	res := Result{RunID: uuid.NewString(), State: StateInit}
	log := slog.With("run_id", res.RunID)

	log.Info("Starting digest run")

	token, ok, err := r.deps.Settings.AcquireLease(ctx, LeaseName, r.opts.LeaseTTL)
	if err != nil {
		log.Error("Failed to acquire run lease", "error", err)
		return res.fail(ExitStoreInit, fmt.Errorf("failed to acquire run lease: %w", err))
	}
	if !ok {
		log.Info("Another digest run holds the lease, skipping")
		res.Skipped = true
		return res.done()
	}
	defer func() {
		if err := r.deps.Settings.ReleaseLease(context.WithoutCancel(ctx), LeaseName, token); err != nil {
			log.Warn("Failed to release run lease", "error", err)
		}
	}()

	res.State = StateFetch
	fresh, reports, err := r.deps.Ingester.Run(ctx, r.opts.FeedURLs, r.opts.MaxEntriesPerFeed)
	res.Ingestion = pipeline.Summarize(reports)
	if err != nil {
		log.Error("Ingestion failed", "error", err)
		return res.fail(ExitIngest, fmt.Errorf("failed to ingest feeds: %w", err))
	}
	res.NewItems = len(fresh)

	log.Info("Feeds ingested",
		"sources", res.Ingestion.Sources,
		"not_modified", res.Ingestion.NotModified,
		"failed_sources", res.Ingestion.FailedSources,
		"inserted", res.Ingestion.Inserted,
		"duplicates", res.Ingestion.Duplicates,
		"failed_entries", res.Ingestion.FailedEntries)

	// The backlog is only worth composing when the digest can reach someone.
	recipients := r.recipients(ctx, log)
	articles := fresh
	if len(recipients) > 0 || r.opts.Preview {
		articles = r.pending(ctx, log, fresh)
	}
	if len(articles) == 0 {
		log.Info("No new articles found, nothing to send")
		return res.done()
	}

	log.Info("Composing digest", "new", len(fresh), "pending", len(articles))

	res.State = StateCompose
	d, err := r.deps.Composer.Compose(articles, digest.Options{
		SubjectOverride: r.opts.SubjectOverride,
		MaxItems:        r.opts.MaxItems,
		Intro:           r.intro(ctx, log),
		MaxSummaryChars: r.opts.MaxSummaryChars,
	})
	if err != nil {
		log.Error("Failed to compose digest", "error", err)
		return res.fail(ExitCompose, fmt.Errorf("failed to compose digest: %w", err))
	}
	res.Digest = d

	if r.opts.Preview {
		log.Info("Preview run, digest not archived or sent", "subject", d.Subject, "items", d.ItemCount)
		return res.done()
	}

	res.State = StateArchive
	if r.deps.Archive != nil {
		filename, err := r.deps.Archive.Persist(d.Subject, d.HTML, d.ItemCount)
		if err != nil {
			log.Error("Failed to archive digest", "error", err)
		} else {
			res.Filename = filename
			log.Info("Archived digest", "filename", filename)
		}
	}

	if len(recipients) == 0 {
		log.Warn("No recipients configured, digest created but not sent")
		return res.done()
	}

	res.State = StateSend
	report, err := r.deps.Mailer.Deliver(ctx, mailer.Request{
		Recipients:   recipients,
		Subject:      d.Subject,
		HTML:         d.HTML,
		Text:         d.Text,
		ReplyTo:      r.opts.ReplyTo,
		Individually: r.opts.Individually,
	})
	res.Delivery = report
	if err != nil {
		log.Error("Failed to send digest", "error", err)
		return res.fail(ExitSend, fmt.Errorf("failed to send digest: %w", err))
	}

	log.Info("Digest delivered",
		"recipients", report.Recipients,
		"sent", report.Sent,
		"failed", report.Failed,
		"dry_run", report.DryRun,
		"individually", r.opts.Individually)

	res.State = StateMarkSent
	marked, err := r.deps.Articles.MarkSent(context.WithoutCancel(ctx), d.IDs())
	if err != nil {
		// Delivered but not marked: the next run may send these again.
		log.Error("Failed to mark articles as sent", "error", err)
		res.State = StateDone
		res.Code = ExitMarkSent
		res.Err = fmt.Errorf("failed to mark articles as sent: %w", err)
		return res
	}
	res.MarkedIDs = marked

	log.Info("Digest run complete", "marked_sent", marked)

	return res.done()
}

// pending merges this run's new articles with the unsent backlog.
// New articles keep their in-memory copy since ad-hoc rows have no joined feed data.
func (r *Runner) pending(ctx context.Context, log *slog.Logger, fresh []database.Article) []database.Article {
	unsent, err := r.deps.Articles.GetUnsentArticles(ctx, 0)
	if err != nil {
		log.Warn("Failed to load unsent backlog, using new articles only", "error", err)
		return fresh
	}

	byID := make(map[int64]database.Article, len(fresh))
	for _, a := range fresh {
		byID[a.ID] = a
	}

	merged := make([]database.Article, 0, len(unsent)+len(fresh))
	seen := make(map[int64]bool, len(unsent))
	for _, a := range unsent {
		if f, ok := byID[a.ID]; ok {
			a = f
		}
		seen[a.ID] = true
		merged = append(merged, a)
	}
	for _, a := range fresh {
		if !seen[a.ID] {
			merged = append(merged, a)
		}
	}

	if backlog := len(merged) - len(fresh); backlog > 0 {
		log.Info("Including unsent backlog", "articles", backlog)
	}

	return merged
}

func (r *Runner) recipients(ctx context.Context, log *slog.Logger) []string {
	if r.deps.Recipients == nil {
		return r.opts.FallbackRecipients
	}

	stored, err := r.deps.Recipients.ListRecipients(ctx)
	if err != nil {
		log.Warn("Failed to read recipients, falling back to EMAIL_TO", "error", err)
		return r.opts.FallbackRecipients
	}
	if len(stored) == 0 {
		return r.opts.FallbackRecipients
	}

	emails := make([]string, 0, len(stored))
	for _, rc := range stored {
		emails = append(emails, rc.Email)
	}
	return emails
}

func (r *Runner) intro(ctx context.Context, log *slog.Logger) string {
	intro, err := r.deps.Settings.GetSetting(ctx, IntroSettingKey, "")
	if err != nil {
		log.Warn("Failed to read digest intro", "error", err)
		return ""
	}
	return intro
}

func (r Result) fail(code int, err error) Result {
	r.State = StateFailed
	r.Code = code
	r.Err = err
	return r
}

func (r Result) done() Result {
	r.State = StateDone
	r.Code = ExitOK
	return r
}
