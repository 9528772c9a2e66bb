package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/coauthor/internal/security"
)

// SessionPruner is the subset of session.Store needed by SessionExpiryJob.
type SessionPruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) (int, error)
}

// SessionExpiryJob removes sessions that have been idle longer than MaxIdle.
type SessionExpiryJob struct {
	Store        SessionPruner
	MaxIdle      time.Duration
	Audit        *security.AuditLogger // optional
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionExpiryJob)(nil)

// Name implements Job.
func (j *SessionExpiryJob) Name() string { return "session_expiry" }

// Schedule implements Job.
func (j *SessionExpiryJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes sessions idle longer than MaxIdle.
func (j *SessionExpiryJob) Run(ctx context.Context) error {
	pruned, err := j.Store.Prune(ctx, j.MaxIdle)
	if pruned > 0 {
		j.Logger.Info("cron: expired idle sessions", "count", pruned, "max_idle", j.MaxIdle)
		j.Audit.Log(security.AuditEvent{
			Type:   security.EventSessionExpired,
			Detail: fmt.Sprintf("count=%d max_idle=%s", pruned, j.MaxIdle),
		})
	}
	if err != nil {
		return fmt.Errorf("cron: session expiry: %w", err)
	}
	return nil
}

// SessionReporter writes the current-sessions report to the log.
type SessionReporter interface {
	LogReport(ctx context.Context, msg string)
}

// SessionReportJob logs the current-sessions report periodically.
type SessionReportJob struct {
	Reporter     SessionReporter
	ScheduleExpr string // empty = default "*/15 * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionReportJob)(nil)

// Name implements Job.
func (j *SessionReportJob) Name() string { return "session_report" }

// Schedule implements Job.
func (j *SessionReportJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run logs the report.
func (j *SessionReportJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: session report cancelled: %w", ctx.Err())
	}
	j.Reporter.LogReport(ctx, "Periodic session report.")
	return nil
}

// LimiterSweeper drops idle rate limiter buckets.
type LimiterSweeper interface {
	Sweep(idle time.Duration) int
}

// RateLimiterSweepJob forgets rate limiter buckets unused for Idle, so
// memory stays bounded by the number of recent clients and sessions.
type RateLimiterSweepJob struct {
	Limiter      LimiterSweeper
	Idle         time.Duration // zero = 10 minutes
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*RateLimiterSweepJob)(nil)

// Name implements Job.
func (j *RateLimiterSweepJob) Name() string { return "ratelimit_sweep" }

// Schedule implements Job.
func (j *RateLimiterSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run sweeps the limiter.
func (j *RateLimiterSweepJob) Run(_ context.Context) error {
	idle := j.Idle
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	if n := j.Limiter.Sweep(idle); n > 0 {
		j.Logger.Debug("cron: swept rate limiters", "count", n)
	}
	return nil
}
