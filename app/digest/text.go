package digest

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(`[ \t]{2,}`)
	spacedBreak  = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// HTMLToText renders an HTML fragment as plain text. Anchors become
// "text (href)" and entities are decoded.
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return collapseWhitespace(fragment)
	}

	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	return collapseWhitespace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(b, c)
		}
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title:
		return
	case atom.Br:
		b.WriteString("\n")
		return
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			b.WriteString(alt)
		}
		return
	case atom.A:
		var inner strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(&inner, c)
		}
		text := strings.TrimSpace(inner.String())
		href := strings.TrimSpace(attr(n, "href"))
		switch {
		case href == "" || href == text:
			b.WriteString(inner.String())
		case text == "":
			b.WriteString(href)
		default:
			b.WriteString(text + " (" + href + ")")
		}
		return
	case atom.Li:
		b.WriteString("\n- ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}

	switch n.DataAtom {
	case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table, atom.Section,
		atom.Article, atom.Header, atom.Footer, atom.Figure:
		b.WriteString("\n\n")
	case atom.Tr, atom.Figcaption:
		b.WriteString("\n")
	case atom.Td, atom.Th:
		b.WriteString(" ")
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spacedBreak.ReplaceAllString(s, "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	s = manySpaces.ReplaceAllString(s, " ")
	return norm.NFC.String(strings.TrimSpace(s))
}

const ellipsis = "…"

// truncate shortens text to at most limit characters. It prefers to cut
// after the last period in the second half of the limit and always marks
// a cut with an ellipsis.
func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	window := runes[:limit]
	for i := len(window) - 1; i >= limit/2; i-- {
		if window[i] == '.' {
			return string(window[:i+1]) + ellipsis
		}
	}

	return string(window) + ellipsis
}
