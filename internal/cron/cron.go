// Package cron runs periodic background tasks: the current-sessions
// report, idle-session expiry, and rate limiter upkeep.
package cron

import "context"

// Job is a task the Scheduler runs on a cron schedule.
type Job interface {
	// Name identifies the job in logs. Names are unique per Scheduler.
	Name() string

	// Schedule is a standard 5-field cron expression.
	Schedule() string

	// Run performs one pass. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}
