package digest

import (
	"strings"
	"testing"
)

func TestAbsoluteURL(t *testing.T) {
	base := baseOrigin("https://example.com/feed.xml")

	tests := map[string]string{
		"/pic.png":               "https://example.com/pic.png",
		"pic.png":                "https://example.com/pic.png",
		"//cdn.example.net/a.js": "https://cdn.example.net/a.js",
		"https://other.com/x":    "https://other.com/x",
		"data:image/png;base64,": "data:image/png;base64,",
		"cid:part1":              "cid:part1",
		"mailto:me@example.com":  "mailto:me@example.com",
		"#section":               "#section",
		"":                       "",
		"http://[::1":            "http://[::1",
	}
	for in, want := range tests {
		if got := absoluteURL(in, base); got != want {
			t.Errorf("absoluteURL(%q) = %q, want %q", in, got, want)
		}
	}

	if got := absoluteURL("/x", nil); got != "/x" {
		t.Errorf("Expected unchanged value without a base, got %q", got)
	}
}

func TestSanitizeSummaryRewritesLinks(t *testing.T) {
	base := baseOrigin("https://example.com/feed.xml")
	raw := `<p>Intro <a href="/post">post</a> and <a href="https://other.com/x">other</a></p>` +
		`<p><img src="/pic.png"><img src="/second.png"></p>`

	got := sanitizeSummary(raw, base)

	if got.Thumbnail != "https://example.com/pic.png" {
		t.Errorf("Expected first image as thumbnail, got %q", got.Thumbnail)
	}
	if strings.Contains(got.HTML, "pic.png") {
		t.Error("Expected thumbnail image to be removed from the body")
	}
	for _, want := range []string{
		`href="https://example.com/post"`,
		`href="https://other.com/x"`,
		`src="https://example.com/second.png"`,
	} {
		if !strings.Contains(got.HTML, want) {
			t.Errorf("Expected %s in %s", want, got.HTML)
		}
	}
}

func TestSanitizeSummaryRemovesActiveContent(t *testing.T) {
	raw := `<p onclick="steal()">Hi<script>alert(1)</script></p>` +
		`<iframe src="https://evil.example.com"></iframe>` +
		`<a href="javascript:alert(1)">x</a><embed src="a.swf"><object></object>`

	got := sanitizeSummary(raw, nil)

	for _, banned := range []string{"onclick", "<script", "<iframe", "<embed", "<object", "javascript:"} {
		if strings.Contains(got.HTML, banned) {
			t.Errorf("Expected %q to be removed, got %s", banned, got.HTML)
		}
	}
	if !strings.Contains(got.HTML, "Hi") {
		t.Errorf("Expected text to survive, got %s", got.HTML)
	}
}

func TestSanitizeSummaryEmpty(t *testing.T) {
	if got := sanitizeSummary("  ", nil); got.HTML != "" || got.Thumbnail != "" {
		t.Errorf("Expected empty result, got %+v", got)
	}
}
