// ABOUTME: API key issuance and validation backed by a KeyStore
// ABOUTME: Mints prefixed random tokens, stores only their SHA-256 hash, and checks presented tokens

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/2389/broodpress/internal/metrics"
	"github.com/2389/broodpress/internal/store"
)

// Auth errors
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid or revoked credential")
	ErrMissingPermission = errors.New("missing permission")
	ErrPersistence       = errors.New("persistence error")

	// ErrDuplicateHash is returned by Issue when the generated hash is already stored.
	ErrDuplicateHash = store.ErrDuplicateHash
)

const (
	// DefaultTokenPrefix marks tokens minted by this service.
	DefaultTokenPrefix = "bp"

	// tokenBytes is the amount of randomness in each token (256 bits).
	tokenBytes = 32
)

// Validator decides whether a presented token is currently usable.
type Validator interface {
	Validate(ctx context.Context, token string) (Result, error)
}

// Result is the outcome of validating a token. Not-found and revoked keys
// both produce the zero Result.
type Result struct {
	Valid       bool
	KeyID       int64
	Name        string
	Permissions store.PermissionSet
}

// IssuedKey is returned once at issuance. Token is the only copy of the plaintext.
type IssuedKey struct {
	ID          int64               `json:"id"`
	Token       string              `json:"token"`
	Name        string              `json:"name"`
	Permissions store.PermissionSet `json:"permissions"`
	CreatedAt   time.Time           `json:"created_at"`
}

// KeyringConfig configures a Keyring. Zero values select the defaults.
type KeyringConfig struct {
	Prefix string           // token prefix, default "bp"
	Rand   io.Reader        // randomness source, default crypto/rand
	Now    func() time.Time // clock, default time.Now
	Logger *slog.Logger
}

// Keyring issues and validates API keys.
type Keyring struct {
	keys   store.KeyStore
	prefix string
	rand   io.Reader
	now    func() time.Time
	logger *slog.Logger
}

// NewKeyring creates a Keyring over the given key store.
func NewKeyring(keys store.KeyStore, cfg KeyringConfig) *Keyring {
	k := &Keyring{
		keys:   keys,
		prefix: cfg.Prefix,
		rand:   cfg.Rand,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if k.prefix == "" {
		k.prefix = DefaultTokenPrefix
	}
	if k.rand == nil {
		k.rand = rand.Reader
	}
	if k.now == nil {
		k.now = time.Now
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	k.logger = k.logger.With("component", "keyring")
	return k
}

// HashToken returns the hex-encoded SHA-256 digest of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue mints a new key named name. When perms holds no non-blank names the
// key gets read and write. A hash collision is reported as ErrDuplicateHash
// and never retried with the same value.
func (k *Keyring) Issue(ctx context.Context, name string, perms ...string) (*IssuedKey, error) {
	return k.issue(ctx, k.keys.InsertAPIKey, name, perms)
}

// IssueFirst mints a key only when none exist yet, atomically with the
// emptiness check. Returns an error wrapping store.ErrKeysExist otherwise.
func (k *Keyring) IssueFirst(ctx context.Context, name string, perms ...string) (*IssuedKey, error) {
	return k.issue(ctx, k.keys.InsertFirstAPIKey, name, perms)
}

func (k *Keyring) issue(ctx context.Context, insert func(context.Context, *store.APIKey) error, name string, perms []string) (*IssuedKey, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(k.rand, buf); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	token := k.prefix + "_" + hex.EncodeToString(buf)

	permSet := store.NewPermissionSet(perms...)
	if len(permSet) == 0 {
		permSet = store.DefaultPermissions()
	}

	record := &store.APIKey{
		KeyHash:     HashToken(token),
		Name:        name,
		CreatedAt:   k.now().UTC().Truncate(time.Second),
		IsActive:    true,
		Permissions: permSet,
	}

	if err := insert(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateHash) || errors.Is(err, store.ErrKeysExist) {
			return nil, fmt.Errorf("storing key: %w", err)
		}
		return nil, fmt.Errorf("%w: storing key: %w", ErrPersistence, err)
	}

	metrics.KeysIssued.Inc()
	k.logger.Info("issued api key", "id", record.ID, "name", name, "permissions", permSet.String())

	return &IssuedKey{
		ID:          record.ID,
		Token:       token,
		Name:        name,
		Permissions: permSet.Clone(),
		CreatedAt:   record.CreatedAt,
	}, nil
}

// Validate checks a presented token. Unknown and revoked tokens both return
// the zero Result with a nil error. A lookup failure returns the zero Result
// and an error wrapping ErrPersistence. On success last_used_at is updated
// best-effort; a failed update is logged and ignored.
func (k *Keyring) Validate(ctx context.Context, token string) (Result, error) {
	hash := HashToken(token)

	record, err := k.keys.GetAPIKeyByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: looking up key: %w", ErrPersistence, err)
	}

	if subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 || !record.IsActive {
		return Result{}, nil
	}

	if err := k.keys.TouchAPIKeyLastUsed(ctx, hash, k.now()); err != nil {
		k.logger.Warn("failed to record key use", "id", record.ID, "error", err)
	}

	return Result{
		Valid:       true,
		KeyID:       record.ID,
		Name:        record.Name,
		Permissions: record.Permissions,
	}, nil
}
