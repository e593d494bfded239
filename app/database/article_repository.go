package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var _ ArticleRepository = (*ArticleStore)(nil)

// ArticleStore handles database operations for articles
type ArticleStore struct {
	db *DB
}

func NewArticleStore(db *DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (r *ArticleStore) ArticleExists(ctx context.Context, feedID int64, link string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM articles WHERE feed_id = ? AND link = ?)",
		feedID, link,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article: %w", err)
	}
	return exists, nil
}

// InsertArticle stores the article unless (feed_id, link) is already present.
// It reports whether a row was written and sets article.ID when it was.
func (r *ArticleStore) InsertArticle(ctx context.Context, article *Article) (bool, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}

	var feedID sql.NullInt64
	if article.FeedID != nil {
		feedID = sql.NullInt64{Int64: *article.FeedID, Valid: true}
	}

	var published sql.NullTime
	if article.Published != nil {
		published = sql.NullTime{Time: article.Published.UTC(), Valid: true}
	}

	args := []any{feedID, nullString(article.GUID), article.Title, article.Link,
		article.Summary, nullString(article.AISummary), published, nullString(article.PublishedRaw), article.CreatedAt}

	// NULL feed ids never collide in the unique index, so ad-hoc rows are
	// deduplicated on link alone.
	stmt := `
		INSERT INTO articles (feed_id, guid, title, link, summary, ai_summary, published, published_raw, sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(feed_id, link) DO NOTHING
	`
	if !feedID.Valid {
		stmt = `
		INSERT INTO articles (feed_id, guid, title, link, summary, ai_summary, published, published_raw, sent, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, 0, ?
		WHERE NOT EXISTS (SELECT 1 FROM articles WHERE feed_id IS NULL AND link = ?)
		`
		args = append(args, article.Link)
	}

	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if id, err := res.LastInsertId(); err == nil {
		article.ID = id
	}
	return true, nil
}

// GetUnsentArticles returns the backlog oldest first, joined with feed data.
// A limit of zero or less returns everything.
func (r *ArticleStore) GetUnsentArticles(ctx context.Context, limit int) ([]Article, error) {
	query := sq.Select(
		"a.id", "a.feed_id", "a.guid", "a.title", "a.link", "a.summary", "a.ai_summary",
		"a.published", "a.published_raw", "a.sent", "a.created_at", "f.url", "f.title", "f.category",
	).
		From("articles a").
		LeftJoin("feeds f ON f.id = a.feed_id").
		Where(sq.Eq{"a.sent": false}).
		OrderBy("a.id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsent articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			a                                Article
			feedID                           sql.NullInt64
			guid, summary, aiSummary         sql.NullString
			publishedRaw                     sql.NullString
			feedURL, feedTitle, feedCategory sql.NullString
			published, createdAt             sql.NullTime
		)
		if err := rows.Scan(&a.ID, &feedID, &guid, &a.Title, &a.Link, &summary, &aiSummary,
			&published, &publishedRaw, &a.Sent, &createdAt, &feedURL, &feedTitle, &feedCategory); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		if feedID.Valid {
			id := feedID.Int64
			a.FeedID = &id
		}
		if published.Valid {
			t := published.Time
			a.Published = &t
		}
		a.PublishedRaw = publishedRaw.String
		a.GUID = guid.String
		a.Summary = summary.String
		a.AISummary = aiSummary.String
		a.CreatedAt = createdAt.Time
		a.FeedURL = feedURL.String
		a.FeedTitle = feedTitle.String
		a.Category = feedCategory.String

		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, nil
}

// MarkSent flips sent to true for the given ids in one transaction.
// Rows already sent are left alone; the count of changed rows is returned.
func (r *ArticleStore) MarkSent(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	stmt, args, err := sq.Update("articles").
		Set("sent", true).
		Where(sq.And{sq.Eq{"id": ids}, sq.Eq{"sent": false}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build mark-sent update: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark articles sent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mark-sent: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// GetArticleStats returns the total and unsent article counts.
func (r *ArticleStore) GetArticleStats(ctx context.Context) (int, int, error) {
	var total, unsent int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN sent = 0 THEN 1 ELSE 0 END), 0)
		FROM articles
	`).Scan(&total, &unsent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get article stats: %w", err)
	}
	return total, unsent, nil
}
