// ABOUTME: Store interfaces and sentinel errors for broodpress persistence
// ABOUTME: Defines KeyStore, ArticleStore and AuditStore implemented by SQLiteStore and MockStore

package store

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateHash is returned when an API key with the same hash already exists
var ErrDuplicateHash = errors.New("api key hash already exists")

// ErrKeysExist is returned by InsertFirstAPIKey when any API key is already stored
var ErrKeysExist = errors.New("api keys already exist")

// ErrStatusConflict is returned when a compare-and-set status update finds the
// article in a different status than expected.
var ErrStatusConflict = errors.New("article status changed concurrently")

// KeyStore defines persistence for API key credential records.
type KeyStore interface {
	// EnsureSchema creates the storage structure if absent. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// InsertAPIKey persists a new record and sets its ID.
	// Returns ErrDuplicateHash if the hash is already stored.
	InsertAPIKey(ctx context.Context, key *APIKey) error

	// InsertFirstAPIKey persists key only when no records exist.
	// Returns ErrKeysExist otherwise.
	InsertFirstAPIKey(ctx context.Context, key *APIKey) error

	// GetAPIKeyByHash returns the record with the given hash or ErrNotFound.
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)

	// ListAPIKeys returns all records newest first, without their hashes.
	ListAPIKeys(ctx context.Context) ([]APIKeySummary, error)

	// CountAPIKeys returns the number of stored records.
	CountAPIKeys(ctx context.Context) (int, error)

	// SetAPIKeyActive updates the active flag and reports whether a row changed.
	SetAPIKeyActive(ctx context.Context, id int64, active bool) (bool, error)

	// DeleteAPIKey removes a record and reports whether a row was deleted.
	DeleteAPIKey(ctx context.Context, id int64) (bool, error)

	// TouchAPIKeyLastUsed advances last_used_at for the record with the given hash.
	TouchAPIKeyLastUsed(ctx context.Context, hash string, ts time.Time) error
}

// ArticleStore defines persistence for article bookkeeping rows.
type ArticleStore interface {
	CreateArticle(ctx context.Context, article *Article) error
	GetArticle(ctx context.Context, id int64) (*Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]*Article, error)
	UpdateArticleStatus(ctx context.Context, id int64, from, to ArticleStatus, note string) error
	SetArticlePublished(ctx context.Context, id int64, url string) error
}

// AuditStore defines the append-only administrative audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// FormatID renders a numeric row ID the way audit target IDs are stored.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
