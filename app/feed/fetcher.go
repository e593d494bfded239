package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxFeedSize = 10 << 20

type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
}

func NewFetcher(httpClient *http.Client, parser *Parser, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
	}
}

// Fetch downloads and parses one feed. It never returns an error directly;
// failures are recorded on the result so one feed cannot abort a run.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts FetchOptions) FetchResult {
	result := FetchResult{URL: url}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result.fail(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}
	if opts.LastModified != "" {
		req.Header.Set("If-Modified-Since", opts.LastModified)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return result.fail(fmt.Errorf("failed to fetch feed: %w", err))
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.ETag = resp.Header.Get("ETag")
	result.LastModified = resp.Header.Get("Last-Modified")

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		// Some servers omit validators on 304; keep the ones we sent.
		if result.ETag == "" {
			result.ETag = opts.ETag
		}
		if result.LastModified == "" {
			result.LastModified = opts.LastModified
		}
		slog.Debug("Feed not modified", "feed", url)
		return result
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result.fail(fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return result.fail(fmt.Errorf("failed to read response body: %w", err))
	}

	metadata, entries, err := f.parser.Run(data, opts.MaxEntries)
	if err != nil {
		return result.fail(err)
	}

	result.Title = metadata.Title
	result.Entries = entries

	slog.Debug("Feed fetched",
		"feed", url,
		"status", resp.StatusCode,
		"entries", len(entries),
		"duration", time.Since(start))

	return result
}

func (r FetchResult) fail(err error) FetchResult {
	r.HadError = true
	r.Err = err
	r.Entries = nil
	return r
}
