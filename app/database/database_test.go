package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Connect(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"rss.db", "rss.db", false},
		{"sqlite:///var/lib/rss.db", "/var/lib/rss.db", false},
		{"sqlite3://rss.db", "rss.db", false},
		{"file:rss.db?cache=shared", "file:rss.db?cache=shared", false},
		{":memory:", ":memory:", false},
		{"postgres://user@localhost/rss", "", true},
		{"", "", true},
		{"sqlite://", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeDSN(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedDSN) {
				t.Errorf("normalizeDSN(%q): expected ErrUnsupportedDSN, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeDSN(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}
	if version != 3 {
		t.Errorf("Expected schema version 3, got %d", version)
	}
}

func TestFeedStoreCRUD(t *testing.T) {
	ctx := context.Background()
	feeds := NewFeedStore(newTestDB(t))

	id, created, err := feeds.AddFeed(ctx, " https://example.com/rss ", "tech")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Expected first AddFeed to create the feed")
	}

	again, created, err := feeds.AddFeed(ctx, "https://example.com/rss", "other")
	if err != nil {
		t.Fatal(err)
	}
	if created || again != id {
		t.Errorf("Expected duplicate AddFeed to return existing id %d, got %d (created=%v)", id, again, created)
	}

	feed, err := feeds.GetFeed(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if feed == nil || feed.URL != "https://example.com/rss" || feed.Category != "tech" || !feed.Enabled {
		t.Fatalf("Unexpected feed %+v", feed)
	}

	disabled := false
	empty := ""
	if err := feeds.UpdateFeed(ctx, id, FeedUpdate{Enabled: &disabled, Category: &empty}); err != nil {
		t.Fatal(err)
	}

	enabled, err := feeds.ListFeeds(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 0 {
		t.Errorf("Expected no enabled feeds, got %d", len(enabled))
	}

	all, err := feeds.ListFeeds(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Category != "" || all[0].Enabled {
		t.Errorf("Unexpected feeds after update: %+v", all)
	}

	if err := feeds.UpdateFeed(ctx, id, FeedUpdate{}); err != nil {
		t.Errorf("Empty update should be a no-op, got %v", err)
	}

	if err := feeds.DeleteFeed(ctx, id); err != nil {
		t.Fatal(err)
	}
	missing, err := feeds.GetFeed(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("Expected nil feed after delete")
	}
}

func TestFeedStoreFetchState(t *testing.T) {
	ctx := context.Background()
	feeds := NewFeedStore(newTestDB(t))

	id, err := feeds.UpsertFeed(ctx, "https://example.com/atom", "news", true)
	if err != nil {
		t.Fatal(err)
	}

	fetchedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	err = feeds.UpdateFetchState(ctx, id, FetchState{
		Title:        "Example",
		ETag:         `"abc"`,
		LastModified: "Wed, 01 May 2024 08:00:00 GMT",
		FetchedAt:    fetchedAt,
	})
	if err != nil {
		t.Fatal(err)
	}

	// A later fetch without a title keeps the stored one.
	if err := feeds.UpdateFetchState(ctx, id, FetchState{ETag: `"def"`, FetchedAt: fetchedAt}); err != nil {
		t.Fatal(err)
	}

	feed, err := feeds.GetFeedByURL(ctx, "https://example.com/atom")
	if err != nil {
		t.Fatal(err)
	}
	if feed.Title != "Example" {
		t.Errorf("Expected title 'Example', got %q", feed.Title)
	}
	if feed.ETag != `"def"` || feed.LastModified != "" {
		t.Errorf("Unexpected tokens: etag=%q last-modified=%q", feed.ETag, feed.LastModified)
	}
	if feed.LastFetchedAt == nil || !feed.LastFetchedAt.Equal(fetchedAt) {
		t.Errorf("Expected last fetched %v, got %v", fetchedAt, feed.LastFetchedAt)
	}
	if feed.DisplayName() != "Example" {
		t.Errorf("Expected display name 'Example', got %q", feed.DisplayName())
	}

	if _, err := feeds.UpsertFeed(ctx, "https://example.com/atom", "", false); err != nil {
		t.Fatal(err)
	}
	count, err := feeds.GetFeedCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected upsert to keep a single feed, got %d", count)
	}
}

func TestArticleStoreDedup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	feeds := NewFeedStore(db)
	articles := NewArticleStore(db)

	feedID, _, err := feeds.AddFeed(ctx, "https://example.com/rss", "")
	if err != nil {
		t.Fatal(err)
	}

	a := &Article{FeedID: &feedID, Title: "One", Link: "https://example.com/1"}
	inserted, err := articles.InsertArticle(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted || a.ID == 0 {
		t.Fatalf("Expected insert with id, got inserted=%v id=%d", inserted, a.ID)
	}

	exists, err := articles.ArticleExists(ctx, feedID, "https://example.com/1")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Expected article to exist")
	}

	inserted, err = articles.InsertArticle(ctx, &Article{FeedID: &feedID, Title: "One again", Link: "https://example.com/1"})
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("Expected duplicate (feed, link) to be skipped")
	}

	// Same link under no feed is a different key, but only once.
	for i, want := range []bool{true, false} {
		inserted, err = articles.InsertArticle(ctx, &Article{Title: "Ad hoc", Link: "https://example.com/1"})
		if err != nil {
			t.Fatal(err)
		}
		if inserted != want {
			t.Errorf("Ad-hoc insert %d: expected inserted=%v", i, want)
		}
	}

	total, unsent, err := articles.GetArticleStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || unsent != 2 {
		t.Errorf("Expected 2 total and 2 unsent, got %d and %d", total, unsent)
	}
}

func TestArticleStoreUnsentAndMarkSent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	feeds := NewFeedStore(db)
	articles := NewArticleStore(db)

	feedID, err := feeds.UpsertFeed(ctx, "https://blog.example.com/feed", "blogs", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := feeds.UpdateFetchState(ctx, feedID, FetchState{Title: "Blog", FetchedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	published := time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)
	var ids []int64
	for _, link := range []string{"https://blog.example.com/a", "https://blog.example.com/b", "https://blog.example.com/c"} {
		a := &Article{FeedID: &feedID, Title: link, Link: link, Summary: "<p>hi</p>", Published: &published}
		if _, err := articles.InsertArticle(ctx, a); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, a.ID)
	}

	unsent, err := articles.GetUnsentArticles(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 2 {
		t.Fatalf("Expected 2 unsent articles with limit, got %d", len(unsent))
	}
	first := unsent[0]
	if first.ID != ids[0] || first.FeedTitle != "Blog" || first.Category != "blogs" || first.FeedURL != "https://blog.example.com/feed" {
		t.Errorf("Unexpected joined article: %+v", first)
	}
	if first.Published == nil || !first.Published.Equal(published) {
		t.Errorf("Expected published %v, got %v", published, first.Published)
	}

	n, err := articles.MarkSent(ctx, ids[:2])
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows marked, got %d", n)
	}

	// Already-sent rows do not count again.
	n, err = articles.MarkSent(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Expected 1 newly marked row, got %d", n)
	}

	unsent, err = articles.GetUnsentArticles(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 0 {
		t.Errorf("Expected empty backlog, got %d", len(unsent))
	}

	if n, err := articles.MarkSent(ctx, nil); err != nil || n != 0 {
		t.Errorf("Expected no-op for empty ids, got %d, %v", n, err)
	}
}

func TestArticleStoreKeepsUnparsedDateText(t *testing.T) {
	ctx := context.Background()
	articles := NewArticleStore(newTestDB(t))

	a := &Article{Title: "Odd date", Link: "https://example.com/odd", PublishedRaw: "Tuesday, sometime after lunch"}
	if _, err := articles.InsertArticle(ctx, a); err != nil {
		t.Fatal(err)
	}

	unsent, err := articles.GetUnsentArticles(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 1 {
		t.Fatalf("Expected 1 unsent article, got %d", len(unsent))
	}
	if unsent[0].Published != nil || unsent[0].PublishedRaw != "Tuesday, sometime after lunch" {
		t.Errorf("Expected raw date text only, got %v / %q", unsent[0].Published, unsent[0].PublishedRaw)
	}
}

func TestDeleteFeedCascadesArticles(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	feeds := NewFeedStore(db)
	articles := NewArticleStore(db)

	feedID, _, err := feeds.AddFeed(ctx, "https://example.com/rss", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := articles.InsertArticle(ctx, &Article{FeedID: &feedID, Title: "x", Link: "https://example.com/x"}); err != nil {
		t.Fatal(err)
	}

	if err := feeds.DeleteFeed(ctx, feedID); err != nil {
		t.Fatal(err)
	}

	total, _, err := articles.GetArticleStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("Expected articles to be deleted with their feed, got %d", total)
	}
}

func TestRecipientStore(t *testing.T) {
	ctx := context.Background()
	recipients := NewRecipientStore(newTestDB(t))

	added, err := recipients.AddRecipient(ctx, " a@example.com ")
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("Expected recipient to be added")
	}

	added, err = recipients.AddRecipient(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("Expected duplicate recipient to be ignored")
	}

	if _, err := recipients.AddRecipient(ctx, "not-an-address"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Expected ErrInvalidEmail, got %v", err)
	}

	n, err := recipients.SetRecipients(ctx, []string{"b@example.com", "c@example.com", "b@example.com", " "})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 distinct recipients, got %d", n)
	}

	if _, err := recipients.SetRecipients(ctx, []string{"d@example.com", "broken"}); err == nil {
		t.Error("Expected invalid address to reject the whole list")
	}

	list, err := recipients.ListRecipients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected previous list to survive a rejected replace, got %+v", list)
	}

	if err := recipients.DeleteRecipient(ctx, "b@example.com"); err != nil {
		t.Fatal(err)
	}
	list, err = recipients.ListRecipients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Email != "c@example.com" {
		t.Errorf("Unexpected recipients after delete: %+v", list)
	}
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	settings := NewSettingsStore(newTestDB(t))

	v, err := settings.GetSetting(ctx, "digest_intro", "fallback")
	if err != nil {
		t.Fatal(err)
	}
	if v != "fallback" {
		t.Errorf("Expected fallback for missing key, got %q", v)
	}

	if err := settings.SetSetting(ctx, "digest_intro", "Hello"); err != nil {
		t.Fatal(err)
	}
	if err := settings.SetSetting(ctx, "digest_intro", "Good morning"); err != nil {
		t.Fatal(err)
	}

	v, err = settings.GetSetting(ctx, "digest_intro", "")
	if err != nil {
		t.Fatal(err)
	}
	if v != "Good morning" {
		t.Errorf("Expected overwritten value, got %q", v)
	}
}

func TestSettingsStoreLease(t *testing.T) {
	ctx := context.Background()
	settings := NewSettingsStore(newTestDB(t))

	token, ok, err := settings.AcquireLease(ctx, "run", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || token == "" {
		t.Fatal("Expected first acquire to succeed")
	}

	if _, ok, err := settings.AcquireLease(ctx, "run", time.Minute); err != nil || ok {
		t.Errorf("Expected live lease to block, got ok=%v err=%v", ok, err)
	}

	// Releasing with a stale token leaves the lease in place.
	if err := settings.ReleaseLease(ctx, "run", "0"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := settings.AcquireLease(ctx, "run", time.Minute); ok {
		t.Error("Expected lease to survive release with a wrong token")
	}

	if err := settings.ReleaseLease(ctx, "run", token); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := settings.AcquireLease(ctx, "run", -time.Second); err != nil || !ok {
		t.Fatalf("Expected acquire after release, got ok=%v err=%v", ok, err)
	}

	// The previous lease expired on creation, so it can be taken over.
	if _, ok, err := settings.AcquireLease(ctx, "run", time.Minute); err != nil || !ok {
		t.Errorf("Expected expired lease to be taken over, got ok=%v err=%v", ok, err)
	}
}
