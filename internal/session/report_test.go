package session

import (
	"testing"
	"time"
)

func TestBuildReport(t *testing.T) {
	t.Parallel()

	now := epoch.Add(3 * time.Hour)
	at := func(ago time.Duration) time.Time { return now.Add(-ago) }

	sessions := []Session{
		{ID: "idle", StartedAt: at(40 * time.Minute), LastQueryAt: at(20 * time.Minute)},
		{ID: "busy", StartedAt: at(50 * time.Minute), LastQueryAt: at(90 * time.Second)},
		{ID: "old", StartedAt: at(2 * time.Hour), LastQueryAt: at(time.Minute)},
	}

	r := BuildReport(sessions, now)

	if r.Total != 3 {
		t.Errorf("Total = %d, want 3", r.Total)
	}
	if r.Active != 2 {
		t.Errorf("Active = %d, want 2", r.Active)
	}
	if len(r.Recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(r.Recent))
	}

	busy, idle := r.Recent[0], r.Recent[1]
	if busy.ID != "busy" || idle.ID != "idle" {
		t.Fatalf("order = %s, %s; want busy, idle", busy.ID, idle.ID)
	}
	if busy.MinutesSinceStart != 50 || busy.MinutesIdle != 1.5 || !busy.Active {
		t.Errorf("busy = %+v", busy)
	}
	if idle.MinutesSinceStart != 40 || idle.MinutesIdle != 20 || idle.Active {
		t.Errorf("idle = %+v", idle)
	}
}

func TestBuildReport_Empty(t *testing.T) {
	t.Parallel()

	r := BuildReport(nil, epoch)
	if r.Total != 0 || r.Active != 0 || r.Recent == nil || len(r.Recent) != 0 {
		t.Errorf("unexpected report: %+v", r)
	}
}
