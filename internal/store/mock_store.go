// ABOUTME: Mock store implementation for testing
// ABOUTME: Keeps keys, articles and audit entries in memory so tests run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory KeyStore, ArticleStore and AuditStore for testing.
// The Err fields, when set, are returned by the matching method instead of
// touching the data.
type MockStore struct {
	mu        sync.RWMutex
	keys      map[int64]*APIKey // keyed by ID
	keyByHash map[string]int64  // key_hash -> ID
	nextKeyID int64
	articles  map[int64]*Article
	nextArtID int64
	audit     []AuditEntry
	touches   int

	InsertErr error
	LookupErr error
	TouchErr  error
	ListErr   error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		keys:      make(map[int64]*APIKey),
		keyByHash: make(map[string]int64),
		articles:  make(map[int64]*Article),
	}
}

// EnsureSchema is a no-op for the mock.
func (m *MockStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// InsertAPIKey stores a copy of key and sets its ID.
func (m *MockStore) InsertAPIKey(ctx context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocked(key)
}

// InsertFirstAPIKey stores key only when the mock holds no keys.
func (m *MockStore) InsertFirstAPIKey(ctx context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	if len(m.keys) > 0 {
		return ErrKeysExist
	}
	return m.insertLocked(key)
}

func (m *MockStore) insertLocked(key *APIKey) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	if _, exists := m.keyByHash[key.KeyHash]; exists {
		return ErrDuplicateHash
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if key.Permissions == nil {
		key.Permissions = DefaultPermissions()
	}

	m.nextKeyID++
	key.ID = m.nextKeyID
	m.keys[key.ID] = copyAPIKey(key)
	m.keyByHash[key.KeyHash] = key.ID
	return nil
}

// GetAPIKeyByHash returns a copy of the record with the given hash.
func (m *MockStore) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	id, ok := m.keyByHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAPIKey(m.keys[id]), nil
}

// ListAPIKeys returns summaries newest first.
func (m *MockStore) ListAPIKeys(ctx context.Context) ([]APIKeySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]APIKeySummary, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CountAPIKeys returns the number of stored keys.
func (m *MockStore) CountAPIKeys(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys), nil
}

// SetAPIKeyActive mirrors the SQLite semantics: revoked keys stay revoked.
func (m *MockStore) SetAPIKeyActive(ctx context.Context, id int64, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return false, nil
	}
	if active && !k.IsActive {
		return false, nil
	}
	k.IsActive = active
	return true, nil
}

// DeleteAPIKey removes a key.
func (m *MockStore) DeleteAPIKey(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return false, nil
	}
	delete(m.keyByHash, k.KeyHash)
	delete(m.keys, id)
	return true, nil
}

// TouchAPIKeyLastUsed advances last_used_at, never moving it backwards.
func (m *MockStore) TouchAPIKeyLastUsed(ctx context.Context, hash string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touches++
	if m.TouchErr != nil {
		return m.TouchErr
	}
	id, ok := m.keyByHash[hash]
	if !ok {
		return nil
	}
	k := m.keys[id]
	ts = ts.UTC().Truncate(time.Second)
	if k.LastUsedAt == nil || k.LastUsedAt.Before(ts) {
		k.LastUsedAt = &ts
	}
	return nil
}

// Touches returns how many times TouchAPIKeyLastUsed was called.
func (m *MockStore) Touches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.touches
}

func copyAPIKey(k *APIKey) *APIKey {
	c := *k
	c.Permissions = k.Permissions.Clone()
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// CreateArticle stores a copy of article and sets its ID.
func (m *MockStore) CreateArticle(ctx context.Context, article *Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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
	m.nextArtID++
	article.ID = m.nextArtID
	a := *article
	m.articles[a.ID] = &a
	return nil
}

// GetArticle returns a copy of the article.
func (m *MockStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// ListArticles returns articles newest first.
func (m *MockStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Article{}
	for _, a := range m.articles {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := normalizeArticleLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateArticleStatus performs the compare-and-set status change.
func (m *MockStore) UpdateArticleStatus(ctx context.Context, id int64, from, to ArticleStatus, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		return ErrStatusConflict
	}
	a.Status = to
	a.ReviewNote = note
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// SetArticlePublished marks an approved article as published.
func (m *MockStore) SetArticlePublished(ctx context.Context, id int64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != ArticleStatusApproved {
		return ErrStatusConflict
	}
	a.Status = ArticleStatusPublished
	a.PublishedURL = url
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendAuditLog records an entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching entries newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.TargetType != nil && e.TargetType != *f.TargetType {
			continue
		}
		if f.TargetID != nil && e.TargetID != *f.TargetID {
			continue
		}
		out = append(out, e)
	}
	if limit := normalizeAuditLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ KeyStore     = (*MockStore)(nil)
	_ ArticleStore = (*MockStore)(nil)
	_ AuditStore   = (*MockStore)(nil)
)
