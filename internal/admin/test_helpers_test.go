// ABOUTME: Shared test helpers for admin package tests
// ABOUTME: Builds SQLite-backed key and article services in a temp directory

package admin

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createKeyService(t *testing.T) (*KeyService, *auth.Keyring, *store.SQLiteStore) {
	t.Helper()
	s := createTestStore(t)
	ring := auth.NewKeyring(s, auth.KeyringConfig{})
	return NewKeyService(ring, s, nil), ring, s
}
