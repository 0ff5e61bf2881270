// Package config provides the Puckline configuration cascade.
//
// Configuration sources (in order of precedence):
//  1. Command line flags
//  2. Environment variables (PUCKLINE_* prefix)
//  3. Project config (./puckline.toml, searched upward)
//  4. User config (~/.puckline/config.toml)
//  5. System config (/etc/puckline/config.toml)
//  6. Default values
package config

// Config represents the core Puckline configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default 8750, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Rate limiting for POST /api/evaluate. Evaluation is the hot
	// path; the limiter protects the store, not the engine.
	EvaluateRateLimit float64 `mapstructure:"evaluate_rate_limit"` // requests per second
	EvaluateRateBurst int     `mapstructure:"evaluate_rate_burst"`
}

// PolicyConfig configures policy evaluation behavior.
// The default effect is deny and is not configurable; only the
// administrative bypass list is.
type PolicyConfig struct {
	BypassActors []string `mapstructure:"bypass_actors"` // explicit, audited exception list
}

// AuditConfig configures audit log queries
type AuditConfig struct {
	QueryLimit int `mapstructure:"query_limit"` // default page size for audit queries
}

// Server port constants
const (
	DefaultServerPort = 8750
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
