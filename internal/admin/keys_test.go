// ABOUTME: Tests for KeyService key administration
// ABOUTME: Covers input validation, revocation, deletion and audit logging

package admin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/store"
)

func TestIssueKey_Success(t *testing.T) {
	svc, ring, s := createKeyService(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "ops", "  Writer Bot  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Writer Bot", issued.Name)
	assert.Equal(t, []string{"read", "write"}, issued.Permissions.List())

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	entries, err := s.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditIssueKey, entries[0].Action)
	assert.Equal(t, "ops", entries[0].Actor)
	assert.Equal(t, store.FormatID(issued.ID), entries[0].TargetID)
	assert.NotContains(t, entries[0].Detail, "token")
}

func TestIssueKey_WithPermissions(t *testing.T) {
	svc, _, _ := createKeyService(t)

	issued, err := svc.IssueKey(context.Background(), "cli", "admin", ParsePermissions("admin, read,read"))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "read"}, issued.Permissions.List())
}

func TestIssueKey_Validation(t *testing.T) {
	svc, _, s := createKeyService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		perms []string
	}{
		{"empty name", "", nil},
		{"blank name", "   ", nil},
		{"long name", strings.Repeat("x", maxKeyNameLength+1), nil},
		{"unknown permission", "k", []string{"read", "delete"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssueKey(ctx, "cli", tt.key, tt.perms)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "invalid requests must not store keys")
}

func TestRevokeKey(t *testing.T) {
	svc, ring, s := createKeyService(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "cli", "temp", nil)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeKey(ctx, "cli", issued.ID))

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.False(t, keys[0].IsActive)

	action := store.AuditRevokeKey
	entries, err := s.ListAuditLog(ctx, store.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRevokeKey_NotFound(t *testing.T) {
	svc, _, _ := createKeyService(t)

	err := svc.RevokeKey(context.Background(), "cli", 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteKey(t *testing.T) {
	svc, ring, _ := createKeyService(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "cli", "gone", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteKey(ctx, "cli", issued.ID))

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, svc.DeleteKey(ctx, "cli", issued.ID), ErrNotFound)
}

func TestHasKeys(t *testing.T) {
	svc, _, _ := createKeyService(t)
	ctx := context.Background()

	has, err := svc.HasKeys(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = svc.IssueKey(ctx, "cli", "first", nil)
	require.NoError(t, err)

	has, err = svc.HasKeys(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBootstrap(t *testing.T) {
	svc, ring, s := createKeyService(t)
	ctx := context.Background()

	_, err := svc.Bootstrap(ctx, "cli", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	issued, err := svc.Bootstrap(ctx, "cli", "Owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "read", "write"}, issued.Permissions.List())

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, result.Permissions.Has(store.PermissionAdmin))

	_, err = svc.Bootstrap(ctx, "cli", "Second")
	assert.ErrorIs(t, err, ErrKeysExist)

	entries, err := s.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditIssueKey, entries[0].Action)
}

// Separate stores on one file stand in for separate bootstrap processes.
func TestBootstrap_ConcurrentMintsOneKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bootstrap.db")
	ctx := context.Background()

	const callers = 4
	services := make([]*KeyService, callers)
	var first *store.SQLiteStore
	for i := range services {
		s, err := store.NewSQLiteStore(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		if first == nil {
			first = s
		}
		services[i] = NewKeyService(auth.NewKeyring(s, auth.KeyringConfig{}), s, nil)
	}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for _, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Bootstrap(ctx, "cli", "Owner")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var minted int
	for err := range errs {
		if err == nil {
			minted++
			continue
		}
		assert.True(t, errors.Is(err, ErrKeysExist), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, minted)

	keys, err := first.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestParsePermissions(t *testing.T) {
	assert.Nil(t, ParsePermissions(""))
	assert.Nil(t, ParsePermissions("  "))
	assert.Equal(t, []string{"read", " write"}, ParsePermissions("read, write"))
}
