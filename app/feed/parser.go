package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS, Atom or JSON feed. maxEntries > 0 keeps only the first
// entries in document order.
func (p *Parser) Run(data []byte, maxEntries int) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title: strings.TrimSpace(feed.Title),
		Link:  feed.Link,
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		entry, ok := p.normalizeItem(item)
		if !ok {
			continue
		}
		entries = append(entries, entry)

		if maxEntries > 0 && len(entries) >= maxEntries {
			break
		}
	}

	return metadata, entries, nil
}

// normalizeItem reports false for items with neither a link nor a title.
func (p *Parser) normalizeItem(item *gofeed.Item) (Entry, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if link == "" && title == "" {
		return Entry{}, false
	}

	entry := Entry{
		GUID:       cmp.Or(strings.TrimSpace(item.GUID), link, title),
		Title:      title,
		Link:       link,
		Summary:    cmp.Or(item.Description, item.Content),
		Content:    item.Content,
		Authors:    p.extractAuthors(item),
		Categories: item.Categories,
	}

	if item.PublishedParsed != nil {
		entry.Published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		entry.Published = item.UpdatedParsed
	} else {
		entry.PublishedRaw = cmp.Or(strings.TrimSpace(item.Published), strings.TrimSpace(item.Updated))
	}

	return entry, true
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if s := p.formatAuthor(author.Name, author.Email); s != "" {
					authors = append(authors, s)
				}
			}
		}
	} else if item.Author != nil {
		if s := p.formatAuthor(item.Author.Name, item.Author.Email); s != "" {
			authors = append(authors, s)
		}
	}

	return authors
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", email, name)
	case name != "":
		return name
	default:
		return email
	}
}
