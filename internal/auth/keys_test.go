// ABOUTME: Tests for API key issuance and validation
// ABOUTME: Covers token format, default permissions, revocation, deletion and best-effort usage tracking

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/broodpress/internal/store"
)

// constReader fills every read with the same byte.
type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func newSQLiteKeyring(t *testing.T) (*Keyring, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewKeyring(s, KeyringConfig{}), s
}

func TestIssue_ThenValidate(t *testing.T) {
	ring, _ := newSQLiteKeyring(t)
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "Test Key")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.Token, DefaultTokenPrefix+"_"))
	assert.Len(t, issued.Token, len(DefaultTokenPrefix)+1+64)
	assert.NotZero(t, issued.ID)

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Test Key", result.Name)
	assert.Equal(t, issued.ID, result.KeyID)
	assert.Equal(t, []string{"read", "write"}, result.Permissions.List())
}

func TestIssue_CustomPrefixAndPermissions(t *testing.T) {
	ring := NewKeyring(store.NewMockStore(), KeyringConfig{Prefix: "nest"})

	issued, err := ring.Issue(context.Background(), "admin", "admin", "read")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Token, "nest_"))
	assert.Equal(t, []string{"admin", "read"}, issued.Permissions.List())
}

func TestIssue_BlankPermissionsGetDefault(t *testing.T) {
	mock := store.NewMockStore()
	ring := NewKeyring(mock, KeyringConfig{})
	ctx := context.Background()

	for _, perms := range [][]string{{""}, {" "}, {"", "  "}} {
		issued, err := ring.Issue(ctx, "blank", perms...)
		require.NoError(t, err)
		assert.Equal(t, []string{"read", "write"}, issued.Permissions.List(), "perms %q", perms)

		result, err := ring.Validate(ctx, issued.Token)
		require.NoError(t, err)
		assert.Equal(t, []string{"read", "write"}, result.Permissions.List(), "stored perms for %q", perms)
	}
}

func TestIssueFirst(t *testing.T) {
	ring, _ := newSQLiteKeyring(t)
	ctx := context.Background()

	first, err := ring.IssueFirst(ctx, "owner", "read", "write", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "read", "write"}, first.Permissions.List())

	_, err = ring.IssueFirst(ctx, "intruder", "admin")
	assert.ErrorIs(t, err, store.ErrKeysExist)
	assert.NotErrorIs(t, err, ErrPersistence)

	// Ordinary issuance is unaffected by existing keys.
	_, err = ring.Issue(ctx, "second")
	require.NoError(t, err)
}

func TestIssue_StoresOnlyHash(t *testing.T) {
	mock := store.NewMockStore()
	ring := NewKeyring(mock, KeyringConfig{})
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "k")
	require.NoError(t, err)

	record, err := mock.GetAPIKeyByHash(ctx, HashToken(issued.Token))
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, record.KeyHash)
	assert.Len(t, record.KeyHash, 64)
}

func TestIssue_DistinctTokens(t *testing.T) {
	ring, _ := newSQLiteKeyring(t)
	ctx := context.Background()

	a, err := ring.Issue(ctx, "same")
	require.NoError(t, err)
	b, err := ring.Issue(ctx, "same")
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
	assert.NotEqual(t, HashToken(a.Token), HashToken(b.Token))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIssue_DuplicateHashNotOverwritten(t *testing.T) {
	_, s := newSQLiteKeyring(t)
	ring := NewKeyring(s, KeyringConfig{Rand: constReader(0x42)})
	ctx := context.Background()

	first, err := ring.Issue(ctx, "first")
	require.NoError(t, err)

	_, err = ring.Issue(ctx, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateHash)
	assert.NotErrorIs(t, err, ErrPersistence)

	result, err := ring.Validate(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Name, "existing record must not be overwritten")
}

func TestIssue_PersistenceError(t *testing.T) {
	mock := store.NewMockStore()
	mock.InsertErr = errors.New("disk I/O error")
	ring := NewKeyring(mock, KeyringConfig{})

	_, err := ring.Issue(context.Background(), "k")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestIssue_RandomnessFailure(t *testing.T) {
	ring := NewKeyring(store.NewMockStore(), KeyringConfig{Rand: failingReader{}})

	_, err := ring.Issue(context.Background(), "k")
	assert.Error(t, err)
}

func TestValidate_UnknownToken(t *testing.T) {
	ring, _ := newSQLiteKeyring(t)

	for _, token := range []string{"bogus", "", "bp_" + strings.Repeat("0", 64)} {
		result, err := ring.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, result.Valid, "token %q", token)
		assert.Equal(t, Result{}, result)
	}
}

func TestValidate_RevokedStaysInvalid(t *testing.T) {
	ring, s := newSQLiteKeyring(t)
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "soon revoked")
	require.NoError(t, err)

	changed, err := s.SetAPIKeyActive(ctx, issued.ID, false)
	require.NoError(t, err)
	require.True(t, changed)

	for i := 0; i < 3; i++ {
		result, err := ring.Validate(ctx, issued.Token)
		require.NoError(t, err)
		assert.Equal(t, Result{}, result, "revoked key must look like an unknown key")
	}

	// no path back to active
	changed, err = s.SetAPIKeyActive(ctx, issued.ID, true)
	require.NoError(t, err)
	assert.False(t, changed)
	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidate_DeletedKey(t *testing.T) {
	ring, s := newSQLiteKeyring(t)
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "deleted")
	require.NoError(t, err)

	deleted, err := s.DeleteAPIKey(ctx, issued.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotEqual(t, issued.ID, k.ID)
	}
}

func TestValidate_UpdatesLastUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	_, s := newSQLiteKeyring(t)
	ring := NewKeyring(s, KeyringConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "clocked")
	require.NoError(t, err)

	_, err = ring.Validate(ctx, issued.Token)
	require.NoError(t, err)

	record, err := s.GetAPIKeyByHash(ctx, HashToken(issued.Token))
	require.NoError(t, err)
	require.NotNil(t, record.LastUsedAt)
	assert.True(t, record.LastUsedAt.Equal(now))
}

func TestValidate_TouchFailureIsIgnored(t *testing.T) {
	mock := store.NewMockStore()
	ring := NewKeyring(mock, KeyringConfig{})
	ctx := context.Background()

	issued, err := ring.Issue(ctx, "k")
	require.NoError(t, err)

	mock.TouchErr = errors.New("database is locked")
	result, err := ring.Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, mock.Touches())
}

func TestValidate_LookupFailure(t *testing.T) {
	mock := store.NewMockStore()
	mock.LookupErr = errors.New("database is locked")
	ring := NewKeyring(mock, KeyringConfig{})

	result, err := ring.Validate(context.Background(), "bp_anything")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, result.Valid)
}

func TestListing_NeverExposesTokenOrHash(t *testing.T) {
	ring, s := newSQLiteKeyring(t)
	ctx := context.Background()

	var issued []*IssuedKey
	for _, name := range []string{"one", "two", "three"} {
		k, err := ring.Issue(ctx, name)
		require.NoError(t, err)
		issued = append(issued, k)
	}

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	data, err := json.Marshal(keys)
	require.NoError(t, err)

	for _, k := range issued {
		assert.NotContains(t, string(data), k.Token)
		assert.NotContains(t, string(data), HashToken(k.Token))
	}
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashToken("abc"))
}
