package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBURL string

	// Mail configuration
	EmailFrom        string
	EmailPassword    string
	EmailTo          []string
	SMTPUsername     string
	SMTPServer       string
	SMTPPort         int
	SMTPTimeout      time.Duration
	SkipSMTPAuth     bool
	FromName         string
	ReplyTo          string
	TestEmail        string
	SendIndividually bool
	UseBCC           bool
	DryRun           bool

	// Digest configuration
	SubjectPrefix   string
	MaxItems        int // 0 means unlimited
	MaxSummaryChars int
	DigestsDir      string

	// Feed configuration
	FeedURLs              []string
	FeedsFile             string
	MaxEntriesPerFeed     int // 0 means unlimited
	FetchTimeout          time.Duration
	FetchConcurrency      int
	FetchRate             float64 // fetches per second, 0 means unlimited
	ExtractEmptySummaries bool
	UserAgent             string

	// Web configuration
	Port          string
	BaseUrl       string
	AdminPassword string
	RunInterval   time.Duration // 0 disables the built-in scheduler

	// Application metadata
	Debug   bool
	Version string
}

// Individually reports whether digests go out as one message per recipient.
// USE_BCC forces a single grouped message even when SEND_INDIVIDUALLY is set.
func (c *Cfg) Individually() bool {
	return c.SendIndividually && !c.UseBCC
}
