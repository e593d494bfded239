package digest

import (
	"net/url"
	"strings"
)

const iconService = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// bareDomain returns the lower-cased host of raw without scheme or port.
func bareDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IconURL builds the favicon URL for a feed, or "" without a usable feed URL.
func IconURL(feedURL string) string {
	domain := bareDomain(feedURL)
	if domain == "" {
		return ""
	}
	return strings.Replace(iconService, "%s", url.QueryEscape(domain), 1)
}
