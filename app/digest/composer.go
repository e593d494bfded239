package digest

import (
	"bytes"
	"cmp"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/lysyi3m/rss-digest/app/database"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	tocWidth       = 72
	preheaderWidth = 140
	textSeparator  = "----------------------------------------"
	timeLayout     = "2006-01-02 15:04"
)

type Composer struct {
	fromName      string
	subjectPrefix string
	tmpl          *template.Template
	now           func() time.Time
}

func NewComposer(fromName, subjectPrefix string) (*Composer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}

	return &Composer{
		fromName:      cmp.Or(fromName, "RSS Digest"),
		subjectPrefix: cmp.Or(subjectPrefix, "[RSS Digest]"),
		tmpl:          tmpl,
		now:           time.Now,
	}, nil
}

// Subject is the default subject for the given instant: prefix plus the UTC date.
func (c *Composer) Subject(at time.Time) string {
	return fmt.Sprintf("%s Daily Digest — %s", c.subjectPrefix, at.UTC().Format("2006-01-02"))
}

// Compose renders articles into a digest. An empty list yields a valid
// document and the "No new items." text body.
func (c *Composer) Compose(articles []database.Article, opts Options) (*Digest, error) {
	if opts.MaxItems > 0 && len(articles) > opts.MaxItems {
		articles = articles[:opts.MaxItems]
	}
	maxChars := opts.MaxSummaryChars
	if maxChars <= 0 {
		maxChars = DefaultMaxSummaryChars
	}

	now := c.now().UTC()
	subject := cmp.Or(strings.TrimSpace(opts.SubjectOverride), c.Subject(now))

	items := make([]itemView, 0, len(articles))
	for i, a := range articles {
		items = append(items, c.buildItem(i, a, maxChars))
	}

	page := pageView{
		Subject:   subject,
		Preheader: preheader(items),
		Intro:     strings.TrimSpace(opts.Intro),
		FromName:  c.fromName,
		Generated: now.Format(timeLayout) + " UTC",
		ItemCount: len(items),
		Items:     items,
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("failed to render digest: %w", err)
	}

	return &Digest{
		Subject:     subject,
		HTML:        buf.String(),
		Text:        renderText(subject, page.Intro, items),
		ItemCount:   len(items),
		GeneratedAt: now,
		Items:       articles,
	}, nil
}

func (c *Composer) buildItem(i int, a database.Article, maxChars int) itemView {
	base := baseOrigin(a.FeedURL)
	if base == nil {
		base = baseOrigin(a.Link)
	}

	clean := sanitizeSummary(cmp.Or(a.AISummary, a.Summary), base)
	text := HTMLToText(clean.HTML)
	short := truncate(text, maxChars)

	item := itemView{
		Anchor:    fmt.Sprintf("item-%d", i+1),
		Title:     cmp.Or(strings.TrimSpace(a.Title), a.Link, "(untitled)"),
		Link:      a.Link,
		Source:    cmp.Or(a.FeedTitle, bareDomain(a.FeedURL), a.FeedURL),
		Category:  a.Category,
		IconURL:   IconURL(a.FeedURL),
		Thumbnail: clean.Thumbnail,
		Text:      short,
	}

	if a.Published != nil {
		item.Published = a.Published.UTC().Format(timeLayout)
	} else {
		item.Published = a.PublishedRaw
	}

	// Short summaries keep their markup; long ones fall back to the cut text.
	if short == text && clean.HTML != "" {
		item.SummaryHTML = template.HTML(clean.HTML)
	} else {
		item.Paragraphs = paragraphs(short)
	}

	return item
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func preheader(items []itemView) string {
	if len(items) == 0 {
		return "No new items."
	}

	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	return runewidth.Truncate(strings.Join(titles, " · "), preheaderWidth, ellipsis)
}

func renderText(subject, intro string, items []itemView) string {
	if len(items) == 0 {
		return subject + "\n\nNo new items."
	}

	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	if intro != "" {
		b.WriteString(intro)
		b.WriteString("\n\n")
	}

	b.WriteString("Contents\n")
	for i, it := range items {
		line := fmt.Sprintf("%2d. %s", i+1, it.Title)
		if it.Source != "" {
			line += " — " + it.Source
		}
		b.WriteString(runewidth.Truncate(line, tocWidth, ellipsis))
		b.WriteString("\n")
	}

	for _, it := range items {
		b.WriteString("\n")
		b.WriteString(textSeparator)
		b.WriteString("\n\n")

		meta := it.Source
		if it.Category != "" {
			meta += " [" + it.Category + "]"
		}
		if it.Published != "" {
			meta += " · " + it.Published
		}
		if meta = strings.TrimSpace(meta); meta != "" {
			b.WriteString(meta)
			b.WriteString("\n")
		}

		b.WriteString(it.Title)
		b.WriteString("\n")
		if it.Link != "" {
			b.WriteString(it.Link)
			b.WriteString("\n")
		}
		if it.Text != "" {
			b.WriteString("\n")
			b.WriteString(it.Text)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
