package digest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const droppedElements = "script, style, iframe, object, embed, noscript, form"

var skippedSchemes = []string{"data:", "cid:", "mailto:", "javascript:", "#"}

// baseOrigin returns scheme://host of raw, or nil when raw is not an absolute URL.
func baseOrigin(raw string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}
}

// absoluteURL resolves v against base. Absolute URLs, special schemes and
// fragments come back unchanged, as does anything that fails to parse.
func absoluteURL(v string, base *url.URL) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || base == nil {
		return v
	}

	lower := strings.ToLower(trimmed)
	for _, prefix := range skippedSchemes {
		if strings.HasPrefix(lower, prefix) {
			return v
		}
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.IsAbs() {
		return v
	}
	return base.ResolveReference(u).String()
}

type sanitized struct {
	HTML      string
	Thumbnail string
}

// sanitizeSummary rewrites src and href attributes to absolute URLs, removes
// active content and detaches the first image as the thumbnail.
func sanitizeSummary(raw string, base *url.URL) sanitized {
	if strings.TrimSpace(raw) == "" {
		return sanitized{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return sanitized{HTML: raw}
	}

	doc.Find(droppedElements).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var handlers []string
		for _, attr := range s.Nodes[0].Attr {
			if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				handlers = append(handlers, attr.Key)
			}
		}
		for _, key := range handlers {
			s.RemoveAttr(key)
		}
	})

	doc.Find("[src], [href]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "href"} {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "javascript:") {
				s.RemoveAttr(attr)
				continue
			}
			s.SetAttr(attr, absoluteURL(v, base))
		}
	})

	var out sanitized

	if img := doc.Find("img[src]").First(); img.Length() > 0 {
		out.Thumbnail, _ = img.Attr("src")
		img.Remove()
	}

	body, err := doc.Find("body").Html()
	if err != nil {
		return sanitized{HTML: raw}
	}
	out.HTML = strings.TrimSpace(body)

	return out
}
