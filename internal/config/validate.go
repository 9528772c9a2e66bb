package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/coauthor/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, the paths, the session backend, every
// duration and schedule, and that all referenced module IDs exist in the
// registry.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Paths.ConfigDir == "" {
		errs = append(errs, errors.New("config: paths.config_dir is required"))
	}
	if cfg.Paths.LogDir == "" {
		errs = append(errs, errors.New("config: paths.log_dir is required"))
	}
	if cfg.Paths.ProjName == "" {
		errs = append(errs, errors.New("config: paths.proj_name is required"))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateSessions(cfg.Sessions)...)
	errs = append(errs, validateDuration("paths.replay_index_ttl", cfg.Paths.ReplayIndexTTL))
	errs = append(errs, validateDuration("reload.debounce", cfg.Reload.Debounce))

	if err := cfg.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateSessions(s SessionsConfig) []error {
	var errs []error

	switch s.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if s.RedisURL == "" {
			errs = append(errs, errors.New("config: sessions.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: sessions.backend %q is not one of memory, redis", s.Backend))
	}

	errs = append(errs, validateDuration("sessions.max_idle", s.MaxIdle))

	if s.ReportSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s.ReportSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: sessions.report_schedule: %w", err))
		}
	}
	return errs
}

// validateDuration returns nil for an empty or valid non-negative duration.
func validateDuration(field, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("config: %s must not be negative", field)
	}
	return nil
}
