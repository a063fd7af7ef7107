// ABOUTME: API key credential records and their SQLite persistence
// ABOUTME: Stores only the one-way hash of each key together with name, permissions and usage time

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Permission names understood by the API.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// PermissionSet is an unordered set of permission names.
// A nil set holds no permissions.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, trimming whitespace and skipping blanks.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// DefaultPermissions returns the set given to newly issued keys.
func DefaultPermissions() PermissionSet {
	return NewPermissionSet(PermissionRead, PermissionWrite)
}

// Has reports whether perm is in the set.
func (p PermissionSet) Has(perm string) bool {
	_, ok := p[perm]
	return ok
}

// List returns the permission names in sorted order.
func (p PermissionSet) List() []string {
	out := make([]string, 0, len(p))
	for perm := range p {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (p PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(p))
	for perm := range p {
		out[perm] = struct{}{}
	}
	return out
}

// String joins the sorted names with commas.
func (p PermissionSet) String() string {
	return strings.Join(p.List(), ",")
}

// MarshalJSON encodes the set as a sorted JSON array.
func (p PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.List())
}

// UnmarshalJSON decodes a JSON array of names.
func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*p = NewPermissionSet(list...)
	return nil
}

// APIKey is a stored credential record. The plaintext key is never stored.
type APIKey struct {
	ID          int64
	KeyHash     string `json:"-"`
	Name        string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	IsActive    bool
	Permissions PermissionSet
}

// Summary returns the externally listable view of the record.
func (k *APIKey) Summary() APIKeySummary {
	return APIKeySummary{
		ID:          k.ID,
		Name:        k.Name,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
		IsActive:    k.IsActive,
		Permissions: k.Permissions.Clone(),
	}
}

// APIKeySummary is the listing view of an API key. It has no hash field.
type APIKeySummary struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	CreatedAt   time.Time     `json:"created_at"`
	LastUsedAt  *time.Time    `json:"last_used_at"`
	IsActive    bool          `json:"is_active"`
	Permissions PermissionSet `json:"permissions"`
}

// InsertAPIKey stores a new API key record and sets key.ID.
// Returns ErrDuplicateHash if a record with the same hash exists.
func (s *SQLiteStore) InsertAPIKey(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (key_hash, name, created_at, last_used_at, is_active, permissions)
		VALUES (?, ?, ?, NULL, ?, ?)
	`
	_, err := s.insertAPIKey(ctx, query, key)
	return err
}

// InsertFirstAPIKey stores key only if the table is empty, as one statement,
// so concurrent callers cannot both succeed. Returns ErrKeysExist otherwise.
func (s *SQLiteStore) InsertFirstAPIKey(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (key_hash, name, created_at, last_used_at, is_active, permissions)
		SELECT ?, ?, ?, NULL, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM api_keys)
	`
	inserted, err := s.insertAPIKey(ctx, query, key)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrKeysExist
	}
	return nil
}

// insertAPIKey runs an insert query taking (hash, name, created_at,
// is_active, permissions) and reports whether a row was written.
func (s *SQLiteStore) insertAPIKey(ctx context.Context, query string, key *APIKey) (bool, error) {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if key.Permissions == nil {
		key.Permissions = DefaultPermissions()
	}

	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return false, fmt.Errorf("encoding permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query,
		key.KeyHash,
		key.Name,
		key.CreatedAt.UTC().Format(time.RFC3339),
		boolToInt(key.IsActive),
		string(perms),
	)
	if err != nil {
		if isUniqueViolation(err, "api_keys.key_hash") {
			return false, ErrDuplicateHash
		}
		return false, fmt.Errorf("inserting api key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("getting api key id: %w", err)
	}
	key.ID = id

	s.logger.Debug("inserted api key", "id", key.ID, "name", key.Name)
	return true, nil
}

// GetAPIKeyByHash retrieves an API key by its hash.
// Returns ErrNotFound if no record matches.
func (s *SQLiteStore) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	query := `
		SELECT id, key_hash, name, created_at, last_used_at, is_active, permissions
		FROM api_keys
		WHERE key_hash = ?
	`

	key, err := scanAPIKey(s.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return key, nil
}

// ListAPIKeys returns all keys ordered by creation time, newest first.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKeySummary, error) {
	query := `
		SELECT id, key_hash, name, created_at, last_used_at, is_active, permissions
		FROM api_keys
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []APIKeySummary{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, key.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// CountAPIKeys returns the number of stored keys, active or not.
func (s *SQLiteStore) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting api keys: %w", err)
	}
	return n, nil
}

// SetAPIKeyActive updates the active flag of a key.
// A revoked key cannot be reactivated: setting active=true on an inactive key
// changes nothing and reports false.
func (s *SQLiteStore) SetAPIKeyActive(ctx context.Context, id int64, active bool) (bool, error) {
	query := `
		UPDATE api_keys
		SET is_active = ?
		WHERE id = ? AND (is_active = 1 OR ? = 0)
	`

	flag := boolToInt(active)
	result, err := s.db.ExecContext(ctx, query, flag, id, flag)
	if err != nil {
		return false, fmt.Errorf("updating api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("set api key active", "id", id, "active", active, "rows_affected", rowsAffected)
	return rowsAffected > 0, nil
}

// DeleteAPIKey permanently removes a key.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted api key", "id", id, "rows_affected", rowsAffected)
	return rowsAffected > 0, nil
}

// TouchAPIKeyLastUsed records a successful use of the key with the given hash.
// last_used_at never moves backwards.
func (s *SQLiteStore) TouchAPIKeyLastUsed(ctx context.Context, hash string, ts time.Time) error {
	query := `
		UPDATE api_keys
		SET last_used_at = ?
		WHERE key_hash = ? AND (last_used_at IS NULL OR last_used_at < ?)
	`

	tsStr := ts.UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, tsStr, hash, tsStr); err != nil {
		return fmt.Errorf("updating api key last_used_at: %w", err)
	}
	return nil
}

// scanAPIKey scans a row into an APIKey.
func scanAPIKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var createdAt, perms string
	var lastUsed sql.NullString
	var active int

	if err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.Name,
		&createdAt,
		&lastUsed,
		&active,
		&perms,
	); err != nil {
		return nil, err
	}

	var err error
	key.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if lastUsed.Valid {
		t, err := time.Parse(time.RFC3339, lastUsed.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_used_at: %w", err)
		}
		key.LastUsedAt = &t
	}

	key.IsActive = active == 1

	if err := json.Unmarshal([]byte(perms), &key.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}

	return &key, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
