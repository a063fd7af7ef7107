// ABOUTME: HTTP middleware gating API routes on API keys and per-key permissions
// ABOUTME: Reads the key from Authorization: Bearer or X-API-Key and attaches the identity to the request context

package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/broodpress/internal/metrics"
)

// DefaultHealthPath is always exempt from authentication.
const DefaultHealthPath = "/health"

// Response messages.
const (
	msgMissingKey = "API key required. Provide it via 'Authorization: Bearer <key>' or 'X-API-Key: <key>' header."
	msgInvalidKey = "Invalid or revoked API key"
)

// GateConfig is shared by the request gate and the permission gate so that
// both honour the same bypass setting.
type GateConfig struct {
	Bypass     bool   // skip all checks (development only)
	HealthPath string // exempt path, default "/health"
	Logger     *slog.Logger
}

func (c GateConfig) healthPath() string {
	if c.HealthPath == "" {
		return DefaultHealthPath
	}
	return c.HealthPath
}

func (c GateConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// errorBody is the JSON body of 401 and 403 responses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind, Message: message})
}

// extractToken returns the presented key. The Authorization bearer value
// wins over X-API-Key when both are set.
func extractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); token != "" {
			return token, nil
		}
	}
	if token := strings.TrimSpace(r.Header.Get("X-API-Key")); token != "" {
		return token, nil
	}
	return "", ErrMissingCredential
}

// APIKeyMiddleware authenticates every request except the health path and,
// when cfg.Bypass is set, all requests.
func APIKeyMiddleware(validator Validator, cfg GateConfig) func(http.Handler) http.Handler {
	logger := cfg.logger().With("component", "auth")
	healthPath := cfg.healthPath()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Bypass || r.URL.Path == healthPath {
				metrics.RecordAuthDecision(metrics.OutcomeBypassed)
				next.ServeHTTP(w, r)
				return
			}

			token, err := extractToken(r)
			if err != nil {
				metrics.RecordAuthDecision(metrics.OutcomeMissing)
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", msgMissingKey)
				return
			}

			result, err := validator.Validate(r.Context(), token)
			if err != nil {
				logger.Error("key validation failed", "path", r.URL.Path, "error", err)
				metrics.RecordAuthDecision(metrics.OutcomeError)
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", msgInvalidKey)
				return
			}
			if !result.Valid {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				metrics.RecordAuthDecision(metrics.OutcomeInvalid)
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", msgInvalidKey)
				return
			}

			logger.Debug("authentication succeeded", "key", result.Name, "path", r.URL.Path)
			metrics.RecordAuthDecision(metrics.OutcomeAuthenticated)

			authCtx := &AuthContext{
				KeyID:       result.KeyID,
				KeyName:     result.Name,
				Permissions: result.Permissions.Clone(),
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequirePermissionHTTP rejects requests whose key lacks permission.
// Must be used after APIKeyMiddleware; a request with no AuthContext is rejected.
func RequirePermissionHTTP(permission string, cfg GateConfig) func(http.Handler) http.Handler {
	logger := cfg.logger().With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Bypass {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := FromContext(r.Context())
			if !authCtx.HasPermission(permission) {
				logger.Warn("permission denied", "permission", permission, "path", r.URL.Path)
				metrics.RecordAuthDecision(metrics.OutcomeForbidden)
				writeJSONError(w, http.StatusForbidden, "Forbidden",
					fmt.Sprintf("API key does not have '%s' permission", permission))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
