package digest

import (
	"html/template"
	"time"

	"github.com/lysyi3m/rss-digest/app/database"
)

const DefaultMaxSummaryChars = 600

type Options struct {
	SubjectOverride string
	MaxItems        int // 0 means unlimited
	Intro           string
	MaxSummaryChars int
}

// Digest is one composed batch. Items are the articles it actually contains,
// after the MaxItems cut.
type Digest struct {
	Subject     string
	HTML        string
	Text        string
	ItemCount   int
	GeneratedAt time.Time
	Items       []database.Article
}

// IDs returns the ids of the included articles that are stored.
func (d *Digest) IDs() []int64 {
	ids := make([]int64, 0, len(d.Items))
	for _, a := range d.Items {
		if a.ID != 0 {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

type pageView struct {
	Subject   string
	Preheader string
	Intro     string
	FromName  string
	Generated string
	ItemCount int
	Items     []itemView
}

type itemView struct {
	Anchor      string
	Title       string
	Link        string
	Source      string
	Category    string
	Published   string
	IconURL     string
	Thumbnail   string
	SummaryHTML template.HTML
	Paragraphs  []string
	Text        string
}
