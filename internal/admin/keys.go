// ABOUTME: Key administration service shared by the admin CLI and the HTTP API
// ABOUTME: Validates issue requests, lists, revokes and deletes keys, and records each change in the audit log

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/store"
)

// Service errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = store.ErrNotFound
	ErrKeysExist         = store.ErrKeysExist
)

// maxKeyNameLength is the maximum allowed length for key names.
const maxKeyNameLength = 100

// allowedPermissions are the permission names a key may be issued with.
var allowedPermissions = map[string]bool{
	store.PermissionRead:  true,
	store.PermissionWrite: true,
	store.PermissionAdmin: true,
}

// KeyIssuer mints new keys.
type KeyIssuer interface {
	Issue(ctx context.Context, name string, perms ...string) (*auth.IssuedKey, error)
	IssueFirst(ctx context.Context, name string, perms ...string) (*auth.IssuedKey, error)
}

// KeyAdminStore defines the store operations needed for key management.
type KeyAdminStore interface {
	ListAPIKeys(ctx context.Context) ([]store.APIKeySummary, error)
	CountAPIKeys(ctx context.Context) (int, error)
	SetAPIKeyActive(ctx context.Context, id int64, active bool) (bool, error)
	DeleteAPIKey(ctx context.Context, id int64) (bool, error)
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// KeyService manages API keys.
type KeyService struct {
	issuer KeyIssuer
	store  KeyAdminStore
	logger *slog.Logger
}

// NewKeyService creates a KeyService.
func NewKeyService(issuer KeyIssuer, s KeyAdminStore, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{
		issuer: issuer,
		store:  s,
		logger: logger.With("component", "admin.keys"),
	}
}

// IssueKey validates the request and mints a key. With no perms the key gets
// read and write.
func (s *KeyService) IssueKey(ctx context.Context, actor, name string, perms []string) (*auth.IssuedKey, error) {
	name, err := validateKeyName(name)
	if err != nil {
		return nil, err
	}

	normalized, err := normalizePermissions(perms)
	if err != nil {
		return nil, err
	}

	issued, err := s.issuer.Issue(ctx, name, normalized...)
	if err != nil {
		return nil, err
	}

	s.auditIssued(ctx, actor, issued)
	return issued, nil
}

// Bootstrap mints the first key with read, write and admin permissions.
// The emptiness check and the insert are one store operation, so of several
// concurrent callers at most one succeeds; the rest get ErrKeysExist.
func (s *KeyService) Bootstrap(ctx context.Context, actor, name string) (*auth.IssuedKey, error) {
	name, err := validateKeyName(name)
	if err != nil {
		return nil, err
	}

	issued, err := s.issuer.IssueFirst(ctx, name,
		store.PermissionRead,
		store.PermissionWrite,
		store.PermissionAdmin,
	)
	if err != nil {
		return nil, err
	}

	s.auditIssued(ctx, actor, issued)
	return issued, nil
}

func (s *KeyService) auditIssued(ctx context.Context, actor string, issued *auth.IssuedKey) {
	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditIssueKey,
		TargetType: store.AuditTargetKey,
		TargetID:   store.FormatID(issued.ID),
		Detail: map[string]any{
			"name":        issued.Name,
			"permissions": issued.Permissions.List(),
		},
	})
}

func validateKeyName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxKeyNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxKeyNameLength)
	}
	return name, nil
}

// ListKeys returns every key, newest first, without hashes.
func (s *KeyService) ListKeys(ctx context.Context) ([]store.APIKeySummary, error) {
	return s.store.ListAPIKeys(ctx)
}

// HasKeys reports whether any key has been issued.
func (s *KeyService) HasKeys(ctx context.Context) (bool, error) {
	n, err := s.store.CountAPIKeys(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeKey deactivates a key. Revocation is permanent.
// Returns ErrNotFound if the key doesn't exist.
func (s *KeyService) RevokeKey(ctx context.Context, actor string, id int64) error {
	changed, err := s.store.SetAPIKeyActive(ctx, id, false)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}

	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditRevokeKey,
		TargetType: store.AuditTargetKey,
		TargetID:   store.FormatID(id),
	})
	return nil
}

// DeleteKey removes a key permanently.
// Returns ErrNotFound if the key doesn't exist.
func (s *KeyService) DeleteKey(ctx context.Context, actor string, id int64) error {
	deleted, err := s.store.DeleteAPIKey(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	s.audit(ctx, &store.AuditEntry{
		Actor:      actor,
		Action:     store.AuditDeleteKey,
		TargetType: store.AuditTargetKey,
		TargetID:   store.FormatID(id),
	})
	return nil
}

// audit appends e to the audit log. Failures are logged, not returned.
func (s *KeyService) audit(ctx context.Context, e *store.AuditEntry) {
	if err := s.store.AppendAuditLog(ctx, e); err != nil {
		s.logger.Warn("failed to append audit log", "action", e.Action, "target", e.TargetID, "error", err)
	}
}

// normalizePermissions trims, deduplicates and checks permission names.
// An empty list stays empty so the issuer applies its default.
func normalizePermissions(perms []string) ([]string, error) {
	set := store.NewPermissionSet(perms...)
	for p := range set {
		if !allowedPermissions[p] {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, p)
		}
	}
	if len(set) == 0 {
		return nil, nil
	}
	return set.List(), nil
}

// ParsePermissions splits a comma-separated permission list.
func ParsePermissions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
