package config

import "time"

// Default values applied by Defaults.
const (
	DefaultConfigDir      = "./config"
	DefaultLogDir         = "./logs"
	DefaultProjName       = "coauthor"
	DefaultReplayDir      = "../logs"
	DefaultReplayIndexTTL = time.Minute
	DefaultReportSchedule = "*/15 * * * *"
	DefaultReloadDebounce = 500 * time.Millisecond

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Paths.ConfigDir == "" {
		c.Paths.ConfigDir = DefaultConfigDir
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = DefaultLogDir
	}
	if c.Paths.ProjName == "" {
		c.Paths.ProjName = DefaultProjName
	}
	if c.Paths.ReplayDir == "" {
		c.Paths.ReplayDir = DefaultReplayDir
	}
	if c.Paths.ReplayIndexTTL == "" {
		c.Paths.ReplayIndexTTL = DefaultReplayIndexTTL.String()
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = BackendMemory
	}
	if c.Sessions.ReportSchedule == "" {
		c.Sessions.ReportSchedule = DefaultReportSchedule
	}
	if c.Reload.Debounce == "" {
		c.Reload.Debounce = DefaultReloadDebounce.String()
	}
	if c.Debug {
		c.Logging.Level = "debug"
	}
	c.Logging.Defaults()
	c.Telemetry.Defaults()
}

// ReplayIndexTTL returns the parsed replay index TTL.
func (c *Config) ReplayIndexTTL() time.Duration {
	return parseDurationOr(c.Paths.ReplayIndexTTL, DefaultReplayIndexTTL)
}

// MaxIdle returns the parsed session expiry, zero when disabled.
func (c *Config) MaxIdle() time.Duration {
	return parseDurationOr(c.Sessions.MaxIdle, 0)
}

// ReloadDebounce returns the parsed watcher debounce.
func (c *Config) ReloadDebounce() time.Duration {
	return parseDurationOr(c.Reload.Debounce, DefaultReloadDebounce)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
