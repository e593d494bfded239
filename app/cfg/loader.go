package cfg

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBURL string `long:"db-url" env:"DB_URL" default:"file:rss-digest.db" description:"SQLite database DSN or file path"`

	// Mail configuration
	EmailFrom        string   `long:"email-from" env:"EMAIL_FROM" description:"Sender address for digests"`
	EmailPassword    string   `long:"email-password" env:"EMAIL_PASSWORD" description:"SMTP password"`
	EmailTo          []string `long:"email-to" env:"EMAIL_TO" env-delim:"," description:"Fallback recipients (comma separated)"`
	SMTPUsername     string   `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP login (defaults to EMAIL_FROM)"`
	SMTPServer       string   `long:"smtp-server" env:"SMTP_SERVER" default:"smtp.gmail.com" description:"SMTP server host"`
	SMTPPort         int      `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port (465 uses implicit TLS)"`
	SMTPTimeout      int      `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"30" description:"SMTP connection timeout in seconds"`
	SkipSMTPAuth     bool     `long:"skip-smtp-auth" env:"SKIP_SMTP_AUTH" description:"Do not authenticate against the SMTP server"`
	FromName         string   `long:"from-name" env:"FROM_NAME" default:"RSS Digest" description:"Sender display name"`
	ReplyTo          string   `long:"reply-to" env:"REPLY_TO" description:"Reply-To address"`
	TestEmail        string   `long:"test-email" env:"TEST_EMAIL" description:"Route every digest to this address instead of the recipients"`
	SendIndividually bool     `long:"send-individually" env:"SEND_INDIVIDUALLY" description:"Send one message per recipient"`
	UseBCC           bool     `long:"use-bcc" env:"USE_BCC" description:"Send one message with all recipients in Bcc"`
	DryRun           string   `long:"dry-run" env:"DRY_RUN" default:"true" description:"Compose digests without opening an SMTP connection"`

	// Digest configuration
	SubjectPrefix   string `long:"subject-prefix" env:"SUBJECT_PREFIX" default:"[RSS Digest]" description:"Prefix of the generated subject"`
	MaxItems        string `long:"max-items" env:"MAX_ITEMS" description:"Maximum number of items per digest (0 = unlimited)"`
	MaxSummaryChars int    `long:"max-summary-chars" env:"MAX_SUMMARY_CHARS" default:"600" description:"Maximum characters per item summary"`
	DigestsDir      string `long:"digests-dir" env:"DIGESTS_DIR" default:"digests" description:"Directory of the digest archive"`

	// Feed configuration
	FeedURLs              []string `long:"feed-urls" env:"FEED_URLS" env-delim:"," description:"Fallback feed URLs (comma separated)"`
	FeedsFile             string   `long:"feeds-file" env:"FEEDS_FILE" description:"YAML file of feeds synced into the registry"`
	MaxEntriesPerFeed     string   `long:"max-entries-per-feed" env:"MAX_ENTRIES_PER_FEED" description:"Maximum entries read per feed (0 = unlimited)"`
	FetchTimeout          int      `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10" description:"Feed fetch timeout in seconds"`
	FetchConcurrency      int      `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Number of feeds fetched in parallel"`
	FetchRate             float64  `long:"fetch-rate" env:"FETCH_RATE" description:"Maximum feed fetches per second (0 = unlimited)"`
	ExtractEmptySummaries bool     `long:"extract-empty-summaries" env:"EXTRACT_EMPTY_SUMMARIES" description:"Fetch the article page when an entry has no summary"`
	UserAgent             string   `long:"user-agent" env:"USER_AGENT" default:"rss-digest/1.0" description:"User agent string for HTTP requests"`

	// Web configuration
	Port          string `long:"port" env:"PORT" default:"42329" description:"HTTP server port"`
	BaseUrl       string `long:"base-url" env:"BASE_URL" description:"Public base URL of the web interface"`
	AdminPassword string `long:"admin-password" env:"ADMIN_PASSWORD" description:"Shared admin secret (admin pages disabled when empty)"`
	RunInterval   int    `long:"run-interval" env:"RUN_INTERVAL" description:"Seconds between scheduled digest runs in server mode (0 = disabled)"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command-line arguments and environment variables.
// It returns nil, nil when help was requested. Arguments that are not
// options are returned to the caller.
func Load(args []string) (*Cfg, []string, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default|flags.IgnoreUnknown)

	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	dryRun, err := parseBool(raw.DryRun)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid DRY_RUN value %q: %w", raw.DryRun, err)
	}

	maxItems, err := parseLimit(raw.MaxItems)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MAX_ITEMS value %q: %w", raw.MaxItems, err)
	}

	maxEntries, err := parseLimit(raw.MaxEntriesPerFeed)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MAX_ENTRIES_PER_FEED value %q: %w", raw.MaxEntriesPerFeed, err)
	}

	cfg := &Cfg{
		DBURL:                 raw.DBURL,
		EmailFrom:             strings.TrimSpace(raw.EmailFrom),
		EmailPassword:         raw.EmailPassword,
		EmailTo:               SplitList(raw.EmailTo...),
		SMTPUsername:          strings.TrimSpace(raw.SMTPUsername),
		SMTPServer:            raw.SMTPServer,
		SMTPPort:              raw.SMTPPort,
		SMTPTimeout:           time.Duration(raw.SMTPTimeout) * time.Second,
		SkipSMTPAuth:          raw.SkipSMTPAuth,
		FromName:              raw.FromName,
		ReplyTo:               strings.TrimSpace(raw.ReplyTo),
		TestEmail:             strings.TrimSpace(raw.TestEmail),
		SendIndividually:      raw.SendIndividually,
		UseBCC:                raw.UseBCC,
		DryRun:                dryRun,
		SubjectPrefix:         raw.SubjectPrefix,
		MaxItems:              maxItems,
		MaxSummaryChars:       raw.MaxSummaryChars,
		DigestsDir:            raw.DigestsDir,
		FeedURLs:              SplitList(raw.FeedURLs...),
		FeedsFile:             raw.FeedsFile,
		MaxEntriesPerFeed:     maxEntries,
		FetchTimeout:          time.Duration(raw.FetchTimeout) * time.Second,
		FetchConcurrency:      max(raw.FetchConcurrency, 1),
		FetchRate:             raw.FetchRate,
		ExtractEmptySummaries: raw.ExtractEmptySummaries,
		UserAgent:             raw.UserAgent,
		Port:                  raw.Port,
		BaseUrl:               strings.TrimRight(raw.BaseUrl, "/"),
		AdminPassword:         raw.AdminPassword,
		RunInterval:           time.Duration(max(raw.RunInterval, 0)) * time.Second,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if cfg.MaxSummaryChars <= 0 {
		cfg.MaxSummaryChars = 600
	}
	if cfg.SMTPTimeout <= 0 {
		cfg.SMTPTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}

	return cfg, rest, nil
}

// SplitList flattens comma-joined values into a list, dropping blanks.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	}
	return strconv.ParseBool(s)
}

// parseLimit reads an optional count. Blank, "none" and negative values mean no limit.
func parseLimit(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return max(n, 0), nil
}
