package feed

import (
	"fmt"
	"log/slog"
	"strings"
)

var validFilterFields = map[string]bool{
	"title":      true,
	"summary":    true,
	"content":    true,
	"authors":    true,
	"link":       true,
	"categories": true,
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run drops entries rejected by the feed's keyword filters.
func (f *Filterer) Run(entries []Entry, feedConfig *Config) []Entry {
	if feedConfig == nil || len(feedConfig.Filters) == 0 {
		return entries
	}

	kept := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if reason, filtered := f.applyFilters(entry, feedConfig.Filters); filtered {
			slog.Debug("Entry filtered", "feed", feedConfig.URL, "link", entry.Link, "reason", reason)
			continue
		}
		kept = append(kept, entry)
	}

	return kept
}

func (f *Filterer) applyFilters(entry Entry, filters []ConfigFilter) (string, bool) {
	for _, filter := range filters {
		value := f.getFieldValue(entry, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude), true
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes), true
			}
		}
	}

	return "", false
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(entry Entry, field string) string {
	switch field {
	case "title":
		return entry.Title
	case "summary":
		return entry.Summary
	case "content":
		return entry.Content
	case "authors":
		return strings.Join(entry.Authors, " ")
	case "link":
		return entry.Link
	case "categories":
		return strings.Join(entry.Categories, " ")
	default:
		return ""
	}
}
