// ABOUTME: Article bookkeeping rows for drafted blog posts and their review status
// ABOUTME: SQLite persistence with compare-and-set status updates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ArticleStatus is the review state of an article.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusApproved  ArticleStatus = "approved"
	ArticleStatusRejected  ArticleStatus = "rejected"
	ArticleStatusPublished ArticleStatus = "published"
)

// Valid reports whether s is a known status.
func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleStatusDraft, ArticleStatusApproved, ArticleStatusRejected, ArticleStatusPublished:
		return true
	}
	return false
}

// Article is a drafted blog post tracked through review and publishing.
type Article struct {
	ID               int64         `json:"id"`
	Title            string        `json:"title"`
	Topic            string        `json:"topic"`
	Body             string        `json:"body"`
	FeaturedImageURL string        `json:"featured_image_url,omitempty"`
	Status           ArticleStatus `json:"status"`
	ReviewNote       string        `json:"review_note,omitempty"`
	PublishedURL     string        `json:"published_url,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ArticleFilter narrows ListArticles results.
type ArticleFilter struct {
	Status *ArticleStatus // only this status
	Limit  int            // max results (default 50, max 500)
}

// normalizeArticleLimit applies default (50) and cap (500) to the list limit.
func normalizeArticleLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// CreateArticle inserts a new article and sets its ID and timestamps.
// A zero status is stored as draft.
func (s *SQLiteStore) CreateArticle(ctx context.Context, article *Article) error {
	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	if article.UpdatedAt.IsZero() {
		article.UpdatedAt = article.CreatedAt
	}
	if article.Status == "" {
		article.Status = ArticleStatusDraft
	}

	query := `
		INSERT INTO articles (title, topic, body, featured_image_url, status, review_note, published_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		article.Title,
		article.Topic,
		article.Body,
		nullString(article.FeaturedImageURL),
		string(article.Status),
		nullString(article.ReviewNote),
		nullString(article.PublishedURL),
		article.CreatedAt.UTC().Format(time.RFC3339),
		article.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting article id: %w", err)
	}
	article.ID = id

	s.logger.Debug("created article", "id", article.ID, "status", article.Status)
	return nil
}

const articleColumns = `id, title, topic, body, featured_image_url, status, review_note, published_url, created_at, updated_at`

// GetArticle retrieves an article by ID.
// Returns ErrNotFound if the article doesn't exist.
func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = ?`

	article, err := scanArticle(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying article: %w", err)
	}
	return article, nil
}

// ListArticles returns articles newest first, optionally filtered by status.
func (s *SQLiteStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]*Article, error) {
	var status *string
	if filter.Status != nil {
		str := string(*filter.Status)
		status = &str
	}

	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE (? IS NULL OR status = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, status, normalizeArticleLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := []*Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return articles, nil
}

// UpdateArticleStatus moves an article from one status to another.
// Returns ErrNotFound if the article doesn't exist and ErrStatusConflict if it
// is no longer in the from status.
func (s *SQLiteStore) UpdateArticleStatus(ctx context.Context, id int64, from, to ArticleStatus, note string) error {
	query := `
		UPDATE articles
		SET status = ?, review_note = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(to),
		nullString(note),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("updating article status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.missingOrConflict(ctx, id)
	}

	s.logger.Debug("updated article status", "id", id, "from", from, "to", to)
	return nil
}

// SetArticlePublished marks an approved article as published at url.
func (s *SQLiteStore) SetArticlePublished(ctx context.Context, id int64, url string) error {
	query := `
		UPDATE articles
		SET status = ?, published_url = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(ArticleStatusPublished),
		url,
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(ArticleStatusApproved),
	)
	if err != nil {
		return fmt.Errorf("publishing article: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.missingOrConflict(ctx, id)
	}

	s.logger.Debug("published article", "id", id, "url", url)
	return nil
}

// missingOrConflict distinguishes a missing article from one whose status
// did not match after an UPDATE touched no rows.
func (s *SQLiteStore) missingOrConflict(ctx context.Context, id int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking article: %w", err)
	}
	return ErrStatusConflict
}

// scanArticle scans a row into an Article.
func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var status, createdAt, updatedAt string
	var imageURL, note, publishedURL sql.NullString

	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Topic,
		&a.Body,
		&imageURL,
		&status,
		&note,
		&publishedURL,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	a.Status = ArticleStatus(status)
	a.FeaturedImageURL = imageURL.String
	a.ReviewNote = note.String
	a.PublishedURL = publishedURL.String

	var err error
	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}
