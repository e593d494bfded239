package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title string
	Link  string
}

// Entry is one normalized feed item.
type Entry struct {
	GUID      string
	Title     string
	Link      string
	Summary   string
	Content   string
	Published *time.Time
	// PublishedRaw holds the unparsed date text when Published is nil.
	PublishedRaw string
	Authors      []string // "email (name)", "name" or "email"
	Categories   []string
}

type FetchOptions struct {
	Timeout      time.Duration
	ETag         string
	LastModified string
	MaxEntries   int // 0 means unlimited
}

// FetchResult is the outcome of fetching one feed. Errors are reported
// through HadError and Err instead of a separate return value.
type FetchResult struct {
	URL          string
	Entries      []Entry
	Title        string
	Status       int
	ETag         string
	LastModified string
	NotModified  bool
	HadError     bool
	Err          error
}

// Configuration types

type SeedFile struct {
	Feeds []Config `yaml:"feeds"`
}

// Config is one feed entry of the seed file.
type Config struct {
	URL      string         `yaml:"url"`
	Category string         `yaml:"category"`
	Enabled  *bool          `yaml:"enabled"`
	Filters  []ConfigFilter `yaml:"filters"`
}

// IsEnabled defaults to true when the seed file omits the flag.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
