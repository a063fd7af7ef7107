// ABOUTME: Authentication context for tracking the calling API key through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating key identity and permissions via context

package auth

import (
	"context"

	"github.com/2389/broodpress/internal/store"
)

// AuthContext holds the identity resolved by the request gate.
// It is attached once per request and not modified afterwards.
type AuthContext struct {
	KeyID       int64
	KeyName     string
	Permissions store.PermissionSet
}

// HasPermission reports whether the key holds perm. A nil context holds nothing.
func (a *AuthContext) HasPermission(perm string) bool {
	if a == nil {
		return false
	}
	return a.Permissions.Has(perm)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// ActorFromContext names the caller for audit entries: the key name, or
// "anonymous" when authentication was bypassed.
func ActorFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil && a.KeyName != "" {
		return a.KeyName
	}
	return "anonymous"
}
