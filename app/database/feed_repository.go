package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var _ FeedRepository = (*FeedStore)(nil)

var feedColumns = []string{
	"id", "url", "category", "enabled", "title", "etag", "last_modified", "last_fetched_at", "added_at",
}

// FeedStore handles database operations for feeds
type FeedStore struct {
	db *DB
}

func NewFeedStore(db *DB) *FeedStore {
	return &FeedStore{db: db}
}

func (r *FeedStore) ListFeeds(ctx context.Context, enabledOnly bool) ([]Feed, error) {
	query := sq.Select(feedColumns...).From("feeds").OrderBy("added_at DESC", "id DESC")
	if enabledOnly {
		query = query.Where(sq.Eq{"enabled": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feed query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feeds: %w", err)
	}

	return feeds, nil
}

func (r *FeedStore) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	return r.getFeedBy(ctx, sq.Eq{"id": id})
}

func (r *FeedStore) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	return r.getFeedBy(ctx, sq.Eq{"url": strings.TrimSpace(url)})
}

func (r *FeedStore) getFeedBy(ctx context.Context, where sq.Eq) (*Feed, error) {
	stmt, args, err := sq.Select(feedColumns...).From("feeds").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feed query: %w", err)
	}

	feed, err := scanFeed(r.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *FeedStore) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// AddFeed registers a URL. The boolean is false when the URL already existed;
// the returned id is the existing row's id in that case.
func (r *FeedStore) AddFeed(ctx context.Context, url, category string) (int64, bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, false, fmt.Errorf("feed url is required")
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (url, category, enabled, added_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(url) DO NOTHING
	`, url, nullString(category), time.Now().UTC())
	if err != nil {
		return 0, false, fmt.Errorf("failed to add feed: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("failed to get feed id: %w", err)
		}
		return id, true, nil
	}

	existing, err := r.GetFeedByURL(ctx, url)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("feed %s vanished after conflict", url)
	}
	return existing.ID, false, nil
}

// UpsertFeed inserts a feed or overwrites category and enabled of an existing one.
func (r *FeedStore) UpsertFeed(ctx context.Context, url, category string, enabled bool) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO feeds (url, category, enabled, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET category = excluded.category, enabled = excluded.enabled
		RETURNING id
	`, strings.TrimSpace(url), nullString(category), enabled, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feed: %w", err)
	}
	return id, nil
}

func (r *FeedStore) UpdateFeed(ctx context.Context, id int64, update FeedUpdate) error {
	query := sq.Update("feeds").Where(sq.Eq{"id": id})
	changed := false

	if update.URL != nil {
		url := strings.TrimSpace(*update.URL)
		if url == "" {
			return fmt.Errorf("feed url is required")
		}
		query = query.Set("url", url)
		changed = true
	}
	if update.Category != nil {
		query = query.Set("category", nullString(*update.Category))
		changed = true
	}
	if update.Enabled != nil {
		query = query.Set("enabled", *update.Enabled)
		changed = true
	}

	if !changed {
		return nil
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build feed update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	return nil
}

// UpdateFetchState stores the conditional-fetch tokens of a successful fetch.
// An empty title keeps the previous one.
func (r *FeedStore) UpdateFetchState(ctx context.Context, id int64, state FetchState) error {
	query := sq.Update("feeds").
		Set("etag", nullString(state.ETag)).
		Set("last_modified", nullString(state.LastModified)).
		Set("last_fetched_at", state.FetchedAt.UTC()).
		Where(sq.Eq{"id": id})
	if state.Title != "" {
		query = query.Set("title", state.Title)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build fetch state update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update fetch state: %w", err)
	}
	return nil
}

func (r *FeedStore) DeleteFeed(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var (
		feed                          Feed
		category, title, etag, lastMd sql.NullString
		lastFetched                   sql.NullTime
	)

	err := row.Scan(&feed.ID, &feed.URL, &category, &feed.Enabled, &title, &etag, &lastMd, &lastFetched, &feed.AddedAt)
	if err != nil {
		return nil, err
	}

	feed.Category = category.String
	feed.Title = title.String
	feed.ETag = etag.String
	feed.LastModified = lastMd.String
	if lastFetched.Valid {
		t := lastFetched.Time
		feed.LastFetchedAt = &t
	}

	return &feed, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
