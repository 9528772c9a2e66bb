package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/coauthor/internal/cron"
	"github.com/flemzord/coauthor/internal/cron/crontest"
	"github.com/flemzord/coauthor/internal/security"
)

func TestSessionExpiryJob_Defaults(t *testing.T) {
	t.Parallel()
	j := &cron.SessionExpiryJob{Logger: slog.Default()}
	if j.Name() != "session_expiry" {
		t.Errorf("name = %q, want %q", j.Name(), "session_expiry")
	}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q, want %q", j.Schedule(), "*/5 * * * *")
	}

	j.ScheduleExpr = "0 * * * *"
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestSessionExpiryJob_Run(t *testing.T) {
	t.Parallel()

	store := &crontest.MockSessionStore{
		PruneFunc: func(maxIdle time.Duration) (int, error) {
			if maxIdle != 3*time.Hour {
				t.Errorf("maxIdle = %v, want 3h", maxIdle)
			}
			return 2, nil
		},
	}

	var events []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) { events = append(events, e) },
	})

	j := &cron.SessionExpiryJob{
		Store:   store,
		MaxIdle: 3 * time.Hour,
		Audit:   audit,
		Logger:  slog.Default(),
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.PruneCalls.Load() != 1 {
		t.Errorf("prune calls = %d, want 1", store.PruneCalls.Load())
	}
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].Type != security.EventSessionExpired {
		t.Errorf("event type = %q", events[0].Type)
	}
	if !strings.Contains(events[0].Detail, "count=2") {
		t.Errorf("detail = %q, want count=2", events[0].Detail)
	}
}

func TestSessionExpiryJob_NothingPruned(t *testing.T) {
	t.Parallel()

	var events int
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(security.AuditEvent) { events++ },
	})
	j := &cron.SessionExpiryJob{
		Store:  &crontest.MockSessionStore{},
		Audit:  audit,
		Logger: slog.Default(),
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events != 0 {
		t.Errorf("audit events = %d, want 0", events)
	}
}

func TestSessionExpiryJob_StoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	j := &cron.SessionExpiryJob{
		Store: &crontest.MockSessionStore{
			PruneFunc: func(time.Duration) (int, error) { return 1, boom },
		},
		Logger: slog.Default(),
	}
	err := j.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
}

func TestSessionReportJob(t *testing.T) {
	t.Parallel()

	reporter := &crontest.MockReporter{}
	j := &cron.SessionReportJob{Reporter: reporter}
	if j.Name() != "session_report" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "*/15 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reporter.Messages) != 1 {
		t.Fatalf("reports = %d, want 1", len(reporter.Messages))
	}
}

func TestSessionReportJob_Cancelled(t *testing.T) {
	t.Parallel()

	reporter := &crontest.MockReporter{}
	j := &cron.SessionReportJob{Reporter: reporter}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(reporter.Messages) != 0 {
		t.Errorf("reports = %d, want 0", len(reporter.Messages))
	}
}

func TestRateLimiterSweepJob(t *testing.T) {
	t.Parallel()

	limiter := security.NewRateLimiter(security.RateLimitConfig{QueriesPerMin: 5})
	_ = limiter.Allow(security.KindQuery, "s1")
	_ = limiter.Allow(security.KindQuery, "s2")

	j := &cron.RateLimiterSweepJob{Limiter: limiter, Idle: time.Nanosecond, Logger: slog.Default()}
	if j.Name() != "ratelimit_sweep" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "*/10 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	time.Sleep(time.Millisecond)
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := limiter.Len(); n != 0 {
		t.Errorf("limiters left = %d, want 0", n)
	}
}

func TestScheduler_ModuleInfo(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	info := s.ModuleInfo()
	if info.ID != "cron.scheduler" {
		t.Errorf("ID = %q", info.ID)
	}
	if _, ok := info.New().(*cron.Scheduler); !ok {
		t.Error("New() did not return a *Scheduler")
	}

	_ = s.RegisterJob(&crontest.MockJob{NameVal: "a", ScheduleVal: "* * * * *"})
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "b", ScheduleVal: "* * * * *"})
	if got := s.Jobs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Jobs() = %v", got)
	}
}
