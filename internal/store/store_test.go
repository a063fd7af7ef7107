// ABOUTME: Shared test helpers for the store package
// ABOUTME: Opens a fresh SQLite database per test in a temp directory

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet(" write", "read", "", "read")
	assert.Len(t, set, 2)
	assert.True(t, set.Has("read"))
	assert.True(t, set.Has("write"))
	assert.False(t, set.Has("admin"))
	assert.Equal(t, []string{"read", "write"}, set.List())
	assert.Equal(t, "read,write", set.String())

	clone := set.Clone()
	clone["admin"] = struct{}{}
	assert.False(t, set.Has("admin"), "clone must not share storage")
}

func TestPermissionSet_JSON(t *testing.T) {
	data, err := NewPermissionSet("write", "read").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["read","write"]`, string(data))

	var set PermissionSet
	require.NoError(t, set.UnmarshalJSON([]byte(`["admin","read"]`)))
	assert.True(t, set.Has("admin"))
	assert.True(t, set.Has("read"))
}

func TestDefaultPermissions(t *testing.T) {
	assert.Equal(t, []string{"read", "write"}, DefaultPermissions().List())
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "42", FormatID(42))
}
