// Package config handles configuration loading for broodpress.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BROODPRESS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/broodpress/config.yaml
//  3. ~/.config/broodpress/config.yaml
//
// A missing file is not an error for LoadOrDefault; every field has a default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${STATE_DIRECTORY}/broodpress.db"
//
// Unset variables expand to the empty string.
//
// # Overrides
//
// BROODPRESS_AUTH_DISABLED (any strconv.ParseBool value) replaces auth.disabled
// and BROODPRESS_DB_PATH replaces database.path, whatever the file says.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//	  shutdown_timeout: "10s"
//
//	database:
//	  path: "~/.local/share/broodpress/broodpress.db"
//
//	auth:
//	  disabled: false       # development only
//	  token_prefix: "bp"
//	  health_path: "/health"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
