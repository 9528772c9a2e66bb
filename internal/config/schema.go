// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for coauthor.
package config

import (
	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/logging"
	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Paths     PathsConfig      `yaml:"paths"`
	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Security  SecurityConfig   `yaml:"security"`
	Sessions  SessionsConfig   `yaml:"sessions"`
	Reload    ReloadConfig     `yaml:"reload"`

	// Debug lowers the log level to debug and enables replay diagnostics.
	Debug bool `yaml:"debug"`

	// Verbose logs full query requests and responses at info level.
	Verbose bool `yaml:"verbose"`

	// UseBlocklist drops suggestions containing a blocklisted word.
	UseBlocklist bool `yaml:"use_blocklist"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.openai").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// PathsConfig locates the config directory and the transcript trees.
type PathsConfig struct {
	// ConfigDir holds access codes, examples, prompts, and the blocklist.
	ConfigDir string `yaml:"config_dir"`

	// LogDir receives transcripts under <log_dir>/<proj_name> and the
	// session metadata file.
	LogDir string `yaml:"log_dir"`

	// ProjName names the transcript subdirectory of LogDir.
	ProjName string `yaml:"proj_name"`

	// ReplayDir is searched recursively by get_log.
	ReplayDir string `yaml:"replay_dir"`

	// ReplayIndexTTL bounds how long the replay directory listing is cached.
	ReplayIndexTTL string `yaml:"replay_index_ttl"`
}

// SecurityConfig holds rate limits and the audit trail location.
type SecurityConfig struct {
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`

	// AuditFile receives one JSON line per security event. Empty disables
	// the audit trail.
	AuditFile string `yaml:"audit_file"`
}

// SessionsConfig selects the session registry backend and its upkeep.
type SessionsConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`

	// MaxIdle expires sessions without a query for this long. Empty or
	// "0" keeps sessions for the life of the process.
	MaxIdle string `yaml:"max_idle"`

	// ReportSchedule is the cron expression of the current-sessions report.
	ReportSchedule string `yaml:"report_schedule"`
}

// ReloadConfig controls the config directory watcher.
type ReloadConfig struct {
	// Watch reloads the catalog when a file in the config dir changes.
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	Debounce string `yaml:"debounce"`
}
