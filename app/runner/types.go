package runner

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/mailer"
	"github.com/lysyi3m/rss-digest/app/pipeline"
)

type State string

const (
	StateInit     State = "INIT"
	StateFetch    State = "FETCH"
	StateCompose  State = "COMPOSE"
	StateArchive  State = "ARCHIVE"
	StateSend     State = "SEND"
	StateMarkSent State = "MARK_SENT"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

// Process exit codes of a batch run.
const (
	ExitOK        = 0
	ExitStoreInit = 2
	ExitIngest    = 3
	ExitSend      = 4
	ExitMarkSent  = 5
	ExitCompose   = 6
)

const (
	LeaseName       = "digest_run"
	DefaultLeaseTTL = 30 * time.Minute
	IntroSettingKey = "digest_intro"
)

type Ingester interface {
	Run(ctx context.Context, explicitURLs []string, maxEntriesPerFeed int) ([]database.Article, []pipeline.SourceReport, error)
}

type Composer interface {
	Compose(articles []database.Article, opts digest.Options) (*digest.Digest, error)
}

type Archiver interface {
	Persist(subject, html string, itemCount int) (string, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, req mailer.Request) (mailer.Report, error)
}

type ArticleStore interface {
	GetUnsentArticles(ctx context.Context, limit int) ([]database.Article, error)
	MarkSent(ctx context.Context, ids []int64) (int64, error)
}

type RecipientStore interface {
	ListRecipients(ctx context.Context) ([]database.Recipient, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key, fallback string) (string, error)
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLease(ctx context.Context, name, token string) error
}

type Deps struct {
	Ingester   Ingester
	Composer   Composer
	Archive    Archiver
	Mailer     Deliverer
	Articles   ArticleStore
	Recipients RecipientStore
	Settings   SettingsStore
}

type Options struct {
	FeedURLs           []string // ad-hoc sources that replace the registry for this run
	MaxEntriesPerFeed  int
	MaxItems           int
	MaxSummaryChars    int
	SubjectOverride    string
	FallbackRecipients []string
	ReplyTo            string
	Individually       bool
	LeaseTTL           time.Duration
	Preview            bool // stop after composing
}

// Result is the terminal state of one run.
type Result struct {
	RunID     string
	State     State
	Code      int
	Err       error
	Skipped   bool
	NewItems  int
	Ingestion pipeline.Summary
	Digest    *digest.Digest
	Filename  string
	Delivery  mailer.Report
	MarkedIDs int64
}

func (r Result) OK() bool {
	return r.Code == ExitOK
}
