// Package config handles configuration loading for toolhub.
//
// # Configuration File
//
// Default location (in order):
//
//  1. Path from the TOOLHUB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/toolhub/toolhub.yaml
//  3. ~/.config/toolhub/toolhub.yaml
//
// Files ending in .toml are read as TOML; anything else is YAML. Both use the
// same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TOOLHUB_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  heartbeat_interval: "30s"
//	  idle_timeout: "30m"
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  base_path: ""
//
//	database:
//	  path: "~/.local/share/toolhub/toolhub.db"
//
//	auth:
//	  jwt_secret: "${TOOLHUB_JWT_SECRET}"
//	  api_keys:
//	    - email: "ci@example.com"
//	      roles: ["user"]
//	      key_hash: "$2a$10$..."
//
//	sessions:
//	  heartbeat_interval: "30s"
//	  idle_timeout: "30m"
//
//	tools:
//	  call_timeout: "30s"
//	  builtins_enabled: true
//
//	capability:
//	  mode: "live"   # or "claims"
//
//	logging:
//	  level: "info"  # debug, info, warn, error
//	  format: "text" # text or json
package config
